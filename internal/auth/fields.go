package auth

import (
	"github.com/maltedev/pricelist-scraper/internal/dom"
	"github.com/maltedev/pricelist-scraper/internal/fold"
)

type fieldGroup struct {
	name    string
	queries []dom.Query
}

const textInput = "//input[@type='text' or not(@type)]"

// Candidate order: exact name or id, placeholder, label followed by an
// input, then position on the page. The positional entry depends on the
// portal's field order and only runs when everything else failed.
var (
	accountField = fieldGroup{
		name: "account_id",
		queries: dom.XPaths(
			"//input[@name='MUSTERI' or @id='MUSTERI']",
			"//input["+fold.XPath("@name")+"='musteri' or "+fold.XPath("@id")+"='musteri']",
			"//input["+fold.XPathContains("@placeholder", "muster")+"]",
			"//label["+fold.XPathContains(".", "musteri")+"]/following::input[1]",
			"("+textInput+")[1]",
		),
	}

	usernameField = fieldGroup{
		name: "username",
		queries: dom.XPaths(
			"//input[@name='KULLANICI' or @id='KULLANICI']",
			"//input["+fold.XPath("@name")+"='kullanici' or "+fold.XPath("@id")+"='kullanici']",
			"//input["+fold.XPathContains("@placeholder", "kullan")+"]",
			"//label["+fold.XPathContains(".", "kullanici")+"]/following::input[1]",
			"("+textInput+")[2]",
		),
	}

	passwordField = fieldGroup{
		name: "password",
		queries: dom.XPaths(
			"//input[@type='password']",
			"//label["+fold.XPathContains(".", "sifre")+"]/following::input[@type='password'][1]",
		),
	}
)

var submitQueries = dom.XPaths(
	"//button["+fold.XPathContains(".", "oturum ac")+" or "+fold.XPathContains(".", "giris")+
		" or "+fold.XPathContains(".", "login")+" or "+fold.XPathContains(".", "sign in")+"]",
	"//input[@type='submit']",
	"//a["+fold.XPathContains(".", "oturum ac")+" or "+fold.XPathContains(".", "giris")+
		" or "+fold.XPathContains(".", "login")+"]",
)

var consentQueries = dom.XPaths(
	"//button[contains(., 'Kabul') or contains(., 'Onayla')]",
	"//a[contains(., 'Kapat') or contains(., 'Tamam')]",
	"//*[@id='onetrust-accept-btn-handler']",
)
