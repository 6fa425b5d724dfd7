package services

import (
	"fmt"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dmitrijs2005/pointshare/internal/common"
)

func validateUserName(userName string) error {
	n := utf8.RuneCountInString(userName)
	if n < 3 || n > 36 {
		return fmt.Errorf("username must be 3 to 36 characters: %w", common.ErrorValidation)
	}
	if strings.IndexFunc(userName, unicode.IsSpace) >= 0 {
		return fmt.Errorf("username must not contain whitespace: %w", common.ErrorValidation)
	}
	return nil
}

func validateEmail(email string) error {
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return fmt.Errorf("email is malformed: %w", common.ErrorValidation)
	}
	at := strings.LastIndexByte(email, '@')
	if at < 1 || !strings.Contains(email[at+1:], ".") {
		return fmt.Errorf("email is malformed: %w", common.ErrorValidation)
	}
	return nil
}

func validatePassword(password string) error {
	n := utf8.RuneCountInString(password)
	if n < 6 || n > 50 {
		return fmt.Errorf("password must be 6 to 50 characters: %w", common.ErrorValidation)
	}
	var digit, letter bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLetter(r):
			letter = true
		}
	}
	if !digit || !letter {
		return fmt.Errorf("password needs at least one letter and one digit: %w", common.ErrorValidation)
	}
	return nil
}

func validateImageText(title, description string) error {
	n := utf8.RuneCountInString(title)
	if n < 3 || n > 30 {
		return fmt.Errorf("title must be 3 to 30 characters: %w", common.ErrorValidation)
	}
	if d := utf8.RuneCountInString(description); d != 0 && (d < 3 || d > 100) {
		return fmt.Errorf("description must be empty or 3 to 100 characters: %w", common.ErrorValidation)
	}
	return nil
}
