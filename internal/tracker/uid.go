package tracker

import (
	"crypto/rand"
	"math/big"
	"regexp"
)

const (
	uidLetters  = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	uidAlphanum = uidLetters + "0123456789"
	uidLength   = 11
)

var uidPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]{10}$`)

// IsValidUID reports whether s is an 11 character identifier starting with a letter.
func IsValidUID(s string) bool {
	return uidPattern.MatchString(s)
}

// GenerateUID returns a new random identifier.
func GenerateUID() string {
	b := make([]byte, uidLength)
	b[0] = uidLetters[randIndex(len(uidLetters))]
	for i := 1; i < uidLength; i++ {
		b[i] = uidAlphanum[randIndex(len(uidAlphanum))]
	}
	return string(b)
}

func randIndex(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		panic(err)
	}
	return int(v.Int64())
}
