package utils

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

const orderNumberPrefix = "TIX-"

func GenerateCode(n int) (string, error) {
	byt := make([]byte, n)

	if _, err := rand.Read(byt); err != nil {
		return "", err
	}

	return strings.ToUpper(hex.EncodeToString(byt)), nil
}

// GenerateOrderNumber returns the human facing order reference printed on tickets.
func GenerateOrderNumber() (string, error) {
	code, err := GenerateCode(8)
	if err != nil {
		return "", err
	}
	return orderNumberPrefix + code, nil
}
