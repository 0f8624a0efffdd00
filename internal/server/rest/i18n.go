package rest

import (
	"net/http"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/message/catalog"
)

var supportedLanguages = []language.Tag{language.English, language.German}

var languageMatcher = language.NewMatcher(supportedLanguages)

// translations maps failure keys to their English and German text.
var translations = map[string][2]string{
	"internal":                          {"An error occurred", "Ein Fehler ist aufgetreten"},
	"request.malformed":                 {"Malformed request body", "Ungültiger Anfragetext"},
	"route.not_found":                   {"Resource not found", "Ressource nicht gefunden"},
	"route.method_not_allowed":          {"Method not allowed", "Methode nicht erlaubt"},
	"auth.username.required":            {"Username is required", "Benutzername ist erforderlich"},
	"auth.username.taken":               {"Username is already taken", "Benutzername ist bereits vergeben"},
	"auth.password.required":            {"Password is required", "Passwort ist erforderlich"},
	"auth.password.invalid":             {"Password is too short", "Das Passwort ist zu kurz"},
	"auth.password.too_short":           {"Password must be at least 6 characters", "Das Passwort muss mindestens 6 Zeichen lang sein"},
	"auth.display_name.required":        {"Display name is required", "Anzeigename ist erforderlich"},
	"auth.email.invalid":                {"Email address is invalid", "E-Mail-Adresse ist ungültig"},
	"auth.role.unknown":                 {"Unknown role", "Unbekannte Rolle"},
	"auth.user.not_found":               {"User not found", "Benutzer nicht gefunden"},
	"auth.account.inactive":             {"Account is deactivated", "Konto ist deaktiviert"},
	"auth.credentials.invalid":          {"Invalid username or password", "Benutzername oder Passwort ungültig"},
	"auth.session.conflict":             {"Session could not be stored", "Sitzung konnte nicht gespeichert werden"},
	"auth.refresh.tokens_required":      {"Access token and refresh token are required", "Zugriffs- und Aktualisierungstoken sind erforderlich"},
	"auth.refresh.access_token_invalid": {"Access token is invalid", "Zugriffstoken ist ungültig"},
	"auth.refresh.token_invalid":        {"Invalid or expired refresh token", "Ungültiges oder abgelaufenes Aktualisierungstoken"},
}

var messages = mustCatalog()

func mustCatalog() catalog.Catalog {
	b := catalog.NewBuilder(catalog.Fallback(language.English))
	for key, t := range translations {
		if err := b.SetString(language.English, key, t[0]); err != nil {
			panic(err)
		}
		if err := b.SetString(language.German, key, t[1]); err != nil {
			panic(err)
		}
	}
	return b
}

// requestLanguage negotiates one of the supported languages from
// Accept-Language, defaulting to English.
func requestLanguage(r *http.Request) language.Tag {
	tags, _, err := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	if err != nil || len(tags) == 0 {
		return language.English
	}
	_, idx, _ := languageMatcher.Match(tags...)
	return supportedLanguages[idx]
}

// localize returns the text for key in tag, or fallback for unknown keys.
func localize(tag language.Tag, key, fallback string) string {
	p := message.NewPrinter(tag, message.Catalog(messages))
	return p.Sprintf(message.Key(key, fallback))
}
