package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/iliyamo/user-insights/internal/apperror"
	"github.com/iliyamo/user-insights/internal/config"
)

const minPasswordLength = 8

// RegisterInput is the payload of registration and of user creation.
type RegisterInput struct {
	Name                 string `json:"name" validate:"required,min=2,max=255"`
	Email                string `json:"email" validate:"required,email,max=255"`
	Password             string `json:"password" validate:"required,password"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
}

// LoginInput carries credentials.
type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// UpdateInput is a partial update. Nil fields are left unchanged.
type UpdateInput struct {
	Name                 *string `json:"name"`
	Email                *string `json:"email"`
	Password             *string `json:"password"`
	PasswordConfirmation *string `json:"password_confirmation"`
}

// inputValidator wraps go-playground/validator with the configured password
// policy and renders failures as per-field messages.
type inputValidator struct {
	v      *validator.Validate
	policy string
}

func newInputValidator(policy string) *inputValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return f.Name
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("password", func(fl validator.FieldLevel) bool {
		return passwordOK(policy, fl.Field().String())
	})
	return &inputValidator{v: v, policy: policy}
}

func passwordOK(policy, pw string) bool {
	if len([]rune(pw)) < minPasswordLength {
		return false
	}
	if policy != config.PasswordPolicyStrict {
		return true
	}
	var upper, lower, digit, symbol bool
	for _, r := range pw {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	return upper && lower && digit && symbol
}

func (iv *inputValidator) passwordMessage() string {
	if iv.policy == config.PasswordPolicyStrict {
		return fmt.Sprintf("The password must be at least %d characters and contain an uppercase letter, a lowercase letter, a number and a symbol.", minPasswordLength)
	}
	return fmt.Sprintf("The password must be at least %d characters.", minPasswordLength)
}

func (iv *inputValidator) message(field, tag, param string) string {
	label := strings.ReplaceAll(field, "_", " ")
	switch tag {
	case "required":
		return fmt.Sprintf("The %s field is required.", label)
	case "email":
		return fmt.Sprintf("The %s must be a valid email address.", label)
	case "min":
		return fmt.Sprintf("The %s must be at least %s characters.", label, param)
	case "max":
		return fmt.Sprintf("The %s may not be greater than %s characters.", label, param)
	case "eqfield":
		return "The password confirmation does not match."
	case "password":
		return iv.passwordMessage()
	}
	return fmt.Sprintf("The %s is invalid.", label)
}

// Struct validates s and returns a validation error or nil.
func (iv *inputValidator) Struct(s any) error {
	err := iv.v.Struct(s)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return apperror.Internal(err)
	}
	fields := apperror.Fields{}
	for _, fe := range ves {
		fields.Add(fe.Field(), iv.message(fe.Field(), fe.Tag(), fe.Param()))
	}
	return apperror.Validation(fields)
}

// field validates a single value against tag and records failures under
// name.
func (iv *inputValidator) field(fields apperror.Fields, name, value, tag string) {
	err := iv.v.Var(value, tag)
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) {
		return
	}
	for _, fe := range ves {
		fields.Add(name, iv.message(name, fe.Tag(), fe.Param()))
	}
}

// Update validates the fields present in in ("sometimes" semantics).
func (iv *inputValidator) Update(in UpdateInput) error {
	fields := apperror.Fields{}
	if in.Name != nil {
		iv.field(fields, "name", strings.TrimSpace(*in.Name), "required,min=2,max=255")
	}
	if in.Email != nil {
		iv.field(fields, "email", strings.TrimSpace(*in.Email), "required,email,max=255")
	}
	if in.Password != nil {
		iv.field(fields, "password", *in.Password, "required,password")
		if in.PasswordConfirmation == nil || *in.PasswordConfirmation != *in.Password {
			fields.Add("password_confirmation", iv.message("password_confirmation", "eqfield", ""))
		}
	}
	if len(fields) > 0 {
		return apperror.Validation(fields)
	}
	return nil
}
