package common

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	HashBitsUsed          = 48
	HashBytesUsed         = HashBitsUsed / 8
	EncodedHashByteLength = HashBytesUsed * 2
)

// HashFileContent reads the binary content of
// every file in paths (assumed to be in lexical order)
// and returns the SHA-256 digest.
func HashFileContent(paths []string) string {
	hasher := sha256.New()
	for _, path := range paths {
		bytes, err := os.ReadFile(path)
		if err != nil {
			GetLogWriter().Fatalf("Error reading file %s: %v", path, err)
		}
		hasher.Write(bytes)
	}

	return hex.EncodeToString(hasher.Sum(nil))[0:EncodedHashByteLength]
}

func WriteTextFile(text, fileName string) (err error) {
	var f *os.File
	if f, err = os.Create(fileName); err != nil {
		GetLogWriter().Printf("Error: could not create %s", fileName)
		return
	}
	defer f.Close()
	if _, err = f.WriteString(text); err != nil {
		GetLogWriter().Printf("Error: Could not write text to %s", fileName)
	}
	return
}

// CanonicalizeDirectory resolves symlinks and relative segments.
func CanonicalizeDirectory(d string) (string, error) {
	target, e := filepath.EvalSymlinks(d)
	if e != nil {
		return "", fmt.Errorf("filepath.EvalSymlinks(%s) failed: %v", d, e)
	}

	a, e := filepath.Abs(target)
	if e != nil {
		return "", fmt.Errorf("filepath.Abs(%s) failed: %v", target, e)
	}
	return a, nil
}

// ValidateDirectories checks that neither directory is a child of the other,
// and of course that they're not the same.
func ValidateDirectories(input, output string) error {
	// The UNIX kernel absolutely forbids slashes in filenames. So, quick and dirty:
	in, err := CanonicalizeDirectory(input)
	if err != nil {
		return err
	}
	out, err := CanonicalizeDirectory(output)
	if err != nil {
		return err
	}
	in += "/"
	out += "/"
	if strings.HasPrefix(out, in) {
		return fmt.Errorf("input directory %s is a prefix of the output directory %s", in, out)
	}
	if strings.HasPrefix(in, out) {
		return fmt.Errorf("output directory %s is a prefix of the input directory %s", out, in)
	}
	return nil
}
