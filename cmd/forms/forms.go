// Package forms binds request bodies to typed forms and validates them before
// anything is written to the store.
package forms

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/samber/lo"
)

const maxMemory = 32 << 20

const (
	MsgRequired      = "This field is required."
	MsgInvalidChoice = "Select a valid choice. That choice is not one of the available choices."
	MsgInvalidImage  = "Upload a valid image. The file you uploaded was either not an image or a corrupted image."
)

// Letters and digits from any script, plus _ . @ + -
var usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)

// Profiles live at /{username}/, so these names would be shadowed by fixed routes.
var reservedUsernames = []string{"auth", "follow", "group", "health", "metrics", "new"}

// ReservedUsernames returns the fixed route names plus the first segment of the
// media URL, whose file server claims every path below it.
func ReservedUsernames(mediaURL string) []string {
	names := slices.Clone(reservedUsernames)
	segment, _, _ := strings.Cut(strings.Trim(mediaURL, "/"), "/")
	if segment != "" {
		names = append(names, strings.ToLower(segment))
	}
	return lo.Uniq(names)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("form"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
		return usernamePattern.MatchString(fl.Field().String())
	})
	return v
}

// Errors maps a field name to its messages.
type Errors map[string][]string

func (e Errors) Add(field, message string) {
	e[field] = append(e[field], message)
}

func (e Errors) Any() bool {
	return len(e) > 0
}

// View is what a form looks like in a response: the submitted (or initial) values
// and any field errors.
type View struct {
	Fields interface{} `json:"fields"`
	Errors Errors      `json:"errors,omitempty"`
}

// Validate runs the struct's validate tags and returns the field errors.
func Validate(form interface{}) Errors {
	errs := Errors{}
	err := validate.Struct(form)
	if err == nil {
		return errs
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		errs.Add("__all__", err.Error())
		return errs
	}
	for _, fe := range validationErrors {
		errs.Add(fe.Field(), message(fe))
	}
	return errs
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return MsgRequired
	case "max":
		return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
	case "min":
		return fmt.Sprintf("Ensure this value has at least %s characters.", fe.Param())
	case "email":
		return "Enter a valid email address."
	case "username":
		return "Enter a valid username. This value may contain only letters, numbers, and @/./+/-/_ characters."
	default:
		return "Enter a valid value."
	}
}

// Parse reads a multipart or urlencoded body into r.Form.
func Parse(r *http.Request) error {
	err := r.ParseMultipartForm(maxMemory)
	if errors.Is(err, http.ErrNotMultipart) {
		return r.ParseForm()
	}
	return err
}

type PostForm struct {
	Text  string `form:"text" json:"text" validate:"required"`
	Group *uint  `form:"group" json:"group"`
}

// BindPost reads a PostForm from a parsed request. Whether the group exists is up to
// the caller; only its shape is checked here.
func BindPost(r *http.Request) (PostForm, Errors) {
	form := PostForm{Text: strings.TrimSpace(r.PostFormValue("text"))}
	errs := Validate(form)

	if raw := strings.TrimSpace(r.PostFormValue("group")); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			errs.Add("group", MsgInvalidChoice)
		} else {
			groupID := uint(id)
			form.Group = &groupID
		}
	}
	return form, errs
}

// CommentForm only carries text; the author and the post come from the session and
// the URL.
type CommentForm struct {
	Text string `form:"text" json:"text" validate:"required"`
}

func BindComment(r *http.Request) (CommentForm, Errors) {
	form := CommentForm{Text: strings.TrimSpace(r.PostFormValue("text"))}
	return form, Validate(form)
}

type SignupForm struct {
	Username string `form:"username" json:"username" validate:"required,max=150,username"`
	Email    string `form:"email" json:"email" validate:"omitempty,email,max=255"`
	Password string `form:"password" json:"-" validate:"required,min=8,max=72"`
}

// BindSignup validates a new account. Names in reserved, compared case-insensitively,
// are refused.
func BindSignup(r *http.Request, reserved []string) (SignupForm, Errors) {
	form := SignupForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	errs := Validate(form)
	if _, invalid := errs["username"]; !invalid && lo.Contains(reserved, strings.ToLower(form.Username)) {
		errs.Add("username", "This username is reserved.")
	}
	return form, errs
}

type LoginForm struct {
	Username string `form:"username" json:"username" validate:"required"`
	Password string `form:"password" json:"-" validate:"required"`
}

func BindLogin(r *http.Request) (LoginForm, Errors) {
	form := LoginForm{
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Password: r.PostFormValue("password"),
	}
	return form, Validate(form)
}
