package instrumentor

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/mod/modfile"

	"github.com/chan-shaw/collafl-go/common"
	"github.com/chan-shaw/collafl-go/coverage"
)

// InstrumentModule instruments every .go file beneath inputDir and writes
// the results under outputDir:
//
//	outputDir/instrumented/...   rewritten sources, mirroring inputDir
//	outputDir/slots/go-<hash>.slots.tsv
//	outputDir/notifier/notifier.go
//
// shimPkg is the import path of the package whose Visit* functions the
// rewritten code calls. Files the rewriter must not touch are copied
// unmodified.
func InstrumentModule(inputDir, outputDir, shimPkg string, conf coverage.Config) (*Summary, error) {
	logWriter := common.GetLogWriter()

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	if err := common.ValidateDirectories(inputDir, outputDir); err != nil {
		return nil, err
	}

	moduleName, err := GetModuleName(inputDir)
	if err != nil {
		return nil, fmt.Errorf("unable to obtain go module name from %q: %v", inputDir, err)
	}

	sourceFiles, err := findSourceCode(inputDir)
	if err != nil {
		return nil, err
	}
	if len(sourceFiles) == 0 {
		logWriter.Printf("No instrumentation targets found under %s", inputDir)
		return &Summary{}, nil
	}
	filesHash := common.HashFileContent(sourceFiles)

	instrumentedDir := filepath.Join(outputDir, common.INSTRUMENTED_FOLDER)
	slotsDir := filepath.Join(outputDir, common.SLOTS_FOLDER)
	notifierDir := filepath.Join(outputDir, common.NOTIFIER_FOLDER)
	for _, dir := range []string{instrumentedDir, slotsDir, notifierDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}

	tableName := fmt.Sprintf("%s-%s%s", common.SLOTS_FILE_HASH_PREFIX, filesHash, common.SLOTS_FILE_SUFFIX)
	err, table := CreateSlotTableFile(filepath.Join(slotsDir, tableName), moduleName)
	if err != nil {
		return nil, err
	}

	inst := New(conf, shimPkg, table)
	for _, path := range sourceFiles {
		if err := inst.AddFile(path); err != nil {
			table.Close()
			return nil, err
		}
	}

	rewritten, err := inst.Instrument()
	if err != nil {
		table.Close()
		return nil, err
	}
	if err := table.Close(); err != nil {
		logWriter.Printf("Error Could not close slot table %s: %s", table.Path, err)
	}
	logWriter.Printf("Slot table: %s", table.Path)

	for path, source := range rewritten {
		rel, err := filepath.Rel(inputDir, path)
		if err != nil {
			return nil, err
		}
		outputPath := filepath.Join(instrumentedDir, rel)
		if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
			return nil, err
		}
		if source == "" {
			// Nothing was inserted; carry the original through.
			original, err := os.ReadFile(path)
			if err != nil {
				return nil, err
			}
			source = string(original)
		}
		if err := common.WriteTextFile(source, outputPath); err != nil {
			return nil, err
		}
	}

	notifierSource, err := GenerateNotifierSource(common.NotifierPackage(filesHash), conf, inst.Result)
	if err != nil {
		return nil, err
	}
	notifierPath := filepath.Join(notifierDir, common.GENERATED_NOTIFIER_SOURCE)
	if err := common.WriteTextFile(notifierSource, notifierPath); err != nil {
		return nil, err
	}

	inst.SummarizeWork()
	return &inst.Summary, nil
}

// GetModuleName reads the short name of the module rooted at inputDir.
func GetModuleName(inputDir string) (string, error) {
	moduleData, err := os.ReadFile(filepath.Join(inputDir, "go.mod"))
	if err != nil {
		return "", err
	}
	f, err := modfile.ParseLax("go.mod", moduleData, nil)
	if err != nil {
		return "", err
	}
	return filepath.Base(f.Module.Mod.Path), nil
}

// findSourceCode scans an input directory recursively for .go files.
// Files are collected in lexical order, so their content can later be
// hashed deterministically.
func findSourceCode(inputDir string) ([]string, error) {
	logWriter := common.GetLogWriter()
	logWriter.Printf("Scanning %s recursively for .go source", inputDir)

	var paths []string
	err := filepath.WalkDir(inputDir,
		func(path string, info fs.DirEntry, erx error) error {
			if erx != nil {
				logWriter.Printf("Error %v in directory %s; skipping", erx, path)
				return erx
			}
			if b := filepath.Base(path); strings.HasPrefix(b, ".") && b != "." {
				if info.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if info.IsDir() {
				if filepath.Base(path) == "testdata" {
					return fs.SkipDir
				}
				return nil
			}
			if !strings.HasSuffix(path, ".go") {
				return nil
			}
			// This is the mandatory format of unit test file names.
			if strings.HasSuffix(path, "_test.go") {
				return nil
			}
			if strings.HasSuffix(path, ".pb.go") {
				if logWriter.VerboseLevel(1) {
					logWriter.Printf("Skipping generated file %s", path)
				}
				return nil
			}
			paths = append(paths, path)
			return nil
		})
	if err != nil {
		return nil, fmt.Errorf("error walking input directory %s: %v", inputDir, err)
	}
	return paths, nil
}
