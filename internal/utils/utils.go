package utils

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// ErrOut is where error boxes are written.
var ErrOut io.Writer = os.Stderr

// ShowError prints a formatted error box without exiting.
// Commands call it before returning the error so the user sees where the run stopped.
func ShowError(context string, err error) {
	fmt.Fprintf(ErrOut, "\n---------------------------------------------------------\n")
	fmt.Fprintf(ErrOut, "🚨 VERDICT ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(ErrOut, "DETAILS: %v\n", err)
	}
	fmt.Fprintf(ErrOut, "---------------------------------------------------------\n")
}

// Fingerprint creates a deterministic hash for a file based on its path, size, and modification time.
// It identifies which results file an archived run was computed from.
func Fingerprint(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	input := fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}
