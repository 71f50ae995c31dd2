// Package validate holds the shared validator instance and the input patterns
// the bot accepts from users.
package validate

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	en_translations "github.com/go-playground/validator/v10/translations/en"

	"github.com/JekaCAP/homework-assistant-bot/internal/apperr"
)

// MaxGithubUsernameLen is GitHub's username length limit.
const MaxGithubUsernameLen = 39

var (
	Validate   *validator.Validate
	Translator ut.Translator

	githubUsernameTag   = "github_username"
	githubUsernameText  = "{0} must be a valid GitHub username"
	githubUsernameRegex = regexp.MustCompile(`^[a-zA-Z\d]+(?:-[a-zA-Z\d]+)*$`)

	prURLTag   = "pr_url"
	prURLText  = "{0} must look like https://github.com/<owner>/<repo>/pull/<number>"
	prURLRegex = regexp.MustCompile(`^https://[^/\s]+/[^/\s]+/[^/\s]+/pull/\d+$`)
)

func init() {
	Validate = validator.New()

	_en := en.New()
	uni := ut.New(_en, _en)
	Translator, _ = uni.GetTranslator("en")
	_ = en_translations.RegisterDefaultTranslations(Validate, Translator)

	// Report yaml/json names instead of Go field names.
	Validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		for _, key := range []string{"yaml", "json"} {
			name := strings.SplitN(fld.Tag.Get(key), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name != "" {
				return name
			}
		}
		return fld.Name
	})

	_ = Validate.RegisterValidation(githubUsernameTag, func(fl validator.FieldLevel) bool {
		return GithubUsername(fl.Field().String())
	})
	_ = Validate.RegisterValidation(prURLTag, func(fl validator.FieldLevel) bool {
		return PRURL(fl.Field().String())
	})
	registerCustomTranslation(githubUsernameTag, githubUsernameText)
	registerCustomTranslation(prURLTag, prURLText)
}

func registerCustomTranslation(tag, text string) {
	_ = Validate.RegisterTranslation(
		tag, Translator,
		func(t ut.Translator) error { return t.Add(tag, text, false) },
		func(t ut.Translator, fe validator.FieldError) string {
			s, _ := t.T(tag, fe.Field())
			return s
		},
	)
}

// GithubUsername reports whether s is a syntactically valid GitHub username:
// alphanumerics with single inner hyphens, at most 39 characters.
func GithubUsername(s string) bool {
	return len(s) <= MaxGithubUsernameLen && githubUsernameRegex.MatchString(s)
}

// PRURL reports whether s matches https://<host>/<owner>/<repo>/pull/<number>.
func PRURL(s string) bool {
	return prURLRegex.MatchString(s)
}

// Struct validates v against its `validate` tags. Failures are returned as an
// *apperr.ValidationError carrying the translated messages.
func Struct(v any) error {
	err := Validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fe.Translate(Translator))
	}
	return &apperr.ValidationError{Msg: strings.Join(msgs, "; ")}
}
