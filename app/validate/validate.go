// Package validate holds the input checks used by dialog processes.
package validate

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/m3rciful/tutorbot/core/telegram/state"
)

var (
	russianWord = regexp.MustCompile(`^[а-яё]+$`)
	russianCity = regexp.MustCompile(`^[а-яё]+(?:[ -][а-яё]+)*$`)
	classRe     = regexp.MustCompile(`^(\d{1,2})\s*([абвг])$`)
	spaces      = regexp.MustCompile(`\s+`)
)

func squash(s string) string {
	return spaces.ReplaceAllString(strings.TrimSpace(s), " ")
}

// capitalize upper-cases the first letter of every part separated by space or hyphen.
func capitalize(s string) string {
	rs := []rune(strings.ToLower(s))
	up := true
	for i, r := range rs {
		if up {
			rs[i] = unicode.ToUpper(r)
		}
		up = r == ' ' || r == '-'
	}
	return string(rs)
}

// Name accepts a single word of Russian letters and returns it capitalized.
func Name(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if !russianWord.MatchString(strings.ToLower(s)) {
		return "", false
	}
	return capitalize(s), true
}

// Surname follows the same rules as Name.
func Surname(s string) (string, bool) {
	return Name(s)
}

// City accepts Russian letters separated by single spaces or hyphens.
func City(s string) (string, bool) {
	s = squash(s)
	if !russianCity.MatchString(strings.ToLower(s)) {
		return "", false
	}
	return capitalize(s), true
}

// School reads the school number from the last word, e.g. "школа 5" or "57".
func School(s string) (int, bool) {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return 0, false
	}
	last := strings.TrimPrefix(fields[len(fields)-1], "№")
	n, err := strconv.Atoi(last)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}

// ClassNumber accepts grades 1..11 with a letter а-г and returns the lower-case form, e.g. "9а".
func ClassNumber(s string) (string, bool) {
	m := classRe.FindStringSubmatch(strings.ToLower(strings.TrimSpace(s)))
	if m == nil {
		return "", false
	}
	grade, err := strconv.Atoi(m[1])
	if err != nil || grade < 1 || grade > 11 {
		return "", false
	}
	return strconv.Itoa(grade) + m[2], true
}

// Password reports whether s is exactly length ASCII digits.
func Password(s string, length int) bool {
	s = strings.TrimSpace(s)
	if length <= 0 || len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// Text accepts any non-empty message.
func Text(s string) (string, bool) {
	s = strings.TrimSpace(s)
	return s, s != ""
}

// Step adapts a typed check into a Validate handler storing the result under key.
func Step[T any](key, retry string, check func(string) (T, bool)) state.ValidateFunc {
	return func(_ context.Context, input string, _ state.Values) state.Result {
		v, ok := check(input)
		if !ok {
			return state.Retry(retry)
		}
		return state.Accepted(key, v)
	}
}

// PasswordStep stores a valid password of length digits under key.
func PasswordStep(key, retry string, length int) state.ValidateFunc {
	return Step(key, retry, func(s string) (string, bool) {
		s = strings.TrimSpace(s)
		return s, Password(s, length)
	})
}
