package common

import "fmt"

const (
	NAME_NOT_AVAILABLE        = "anonymous"
	INSTRUMENTED_FOLDER       = "instrumented"
	SLOTS_FOLDER              = "slots"
	SLOTS_FILE_HASH_PREFIX    = "go"
	SLOTS_FILE_SUFFIX         = ".slots.tsv"
	NOTIFIER_FOLDER           = "notifier"
	GENERATED_NOTIFIER_SOURCE = "notifier.go"
	NOTIFIER_PACKAGE_PREFIX   = "z"
)

// package z4a1b45a05078
func NotifierPackage(filesHash string) string {
	return fmt.Sprintf("%s%s", NOTIFIER_PACKAGE_PREFIX, filesHash)
}
