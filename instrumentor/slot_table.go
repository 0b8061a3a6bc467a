package instrumentor

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/chan-shaw/collafl-go/solver"
)

// Row kinds, one per instrumentation mechanism.
const (
	KindEnter  = "enter"
	KindSingle = "single"
	KindLookup = "lookup"
	KindSolved = "solved"
)

// SlotTable is the serialization of every slot decision the run makes, one
// row per edge or block, for humans and downstream tooling.
type SlotTable struct {
	Path   string
	writer slotTableWriter
}

// SlotRow is one line of the table. PredKey and Slot are meaningful for
// lookup rows, Slot alone for single rows, Params for solved rows.
type SlotRow struct {
	Path     string
	Function string
	Line     int
	Kind     string
	Key      uint32
	PredKey  uint32
	Slot     uint32
	Params   solver.HashParams
}

// CreateSlotTableFile opens a .slots.tsv file on disk.
func CreateSlotTableFile(slotTablePath, instrumentedModule string) (err error, slotTable *SlotTable) {
	var w *fileSlotTableWriter
	if err, w = createFileSlotTableWriter(slotTablePath); err != nil {
		return
	}

	slotTable = &SlotTable{Path: slotTablePath, writer: w}
	if err = slotTable.writeHeader(instrumentedModule); err != nil {
		slotTable = nil
	}
	return
}

// CreateInMemorySlotTable creates an in-memory slot table for testing.
func CreateInMemorySlotTable(slotTablePath, instrumentedModule string) *SlotTable {
	w := createInMemorySlotTableWriter()
	slotTable := &SlotTable{Path: slotTablePath, writer: w}
	slotTable.writeHeader(instrumentedModule)
	return slotTable
}

func (t *SlotTable) writeHeader(module string) error {
	if err := t.writer.WriteLine("# language = Go"); err != nil {
		return err
	}
	if err := t.writer.WriteLine("# module = " + module); err != nil {
		return err
	}
	return t.writer.WriteLine("file\tfunction\tline\tkind\tkey\tpred_key\tslot\tx\ty\tz")
}

// WriteRow serializes one slot decision. Columns a kind does not use are
// written as "-" so that slot 0 stays distinguishable from no slot.
func (t *SlotTable) WriteRow(r SlotRow) error {
	predKey, slot, x, y, z := "-", "-", "-", "-", "-"
	switch r.Kind {
	case KindSingle:
		slot = fmt.Sprintf("%d", r.Slot)
	case KindLookup:
		predKey = fmt.Sprintf("%d", r.PredKey)
		slot = fmt.Sprintf("%d", r.Slot)
	case KindSolved:
		x = fmt.Sprintf("%d", r.Params.X)
		y = fmt.Sprintf("%d", r.Params.Y)
		z = fmt.Sprintf("%d", r.Params.Z)
	}
	line := fmt.Sprintf("%s\t%s\t%d\t%s\t%d\t%s\t%s\t%s\t%s\t%s",
		r.Path, r.Function, r.Line, r.Kind, r.Key, predKey, slot, x, y, z)
	return t.writer.WriteLine(line)
}

// Close closes the underlying file resources.
func (t *SlotTable) Close() error {
	return t.writer.Close()
}

func (t *SlotTable) String() string {
	return t.writer.String()
}

// --------------------------------------------------------------------------------
// slotTableWriter
// --------------------------------------------------------------------------------
type slotTableWriter interface {
	WriteLine(s string) error
	Close() error
	String() string
}

type fileSlotTableWriter struct {
	f      *os.File
	writer *bufio.Writer
}

type inMemorySlotTableWriter struct {
	writer strings.Builder
}

// --------------------------------------------------------------------------------
// fileSlotTableWriter
// --------------------------------------------------------------------------------
func createFileSlotTableWriter(name string) (err error, w *fileSlotTableWriter) {
	var f *os.File
	if f, err = os.Create(name); err != nil {
		return
	}
	w = &fileSlotTableWriter{
		f:      f,
		writer: bufio.NewWriter(f),
	}
	return
}

func (w *fileSlotTableWriter) WriteLine(s string) error {
	if _, err := w.writer.WriteString(s + "\n"); err != nil {
		return err
	}
	return w.writer.Flush()
}

func (w *fileSlotTableWriter) Close() error {
	if err := w.writer.Flush(); err != nil {
		return err
	}
	return w.f.Close()
}

func (fileSlotTableWriter) String() string {
	return ""
}

// --------------------------------------------------------------------------------
// inMemorySlotTableWriter
// --------------------------------------------------------------------------------
func createInMemorySlotTableWriter() slotTableWriter {
	return &inMemorySlotTableWriter{}
}

func (w *inMemorySlotTableWriter) WriteLine(s string) error {
	_, err := w.writer.WriteString(s + "\n")
	return err
}

func (w *inMemorySlotTableWriter) Close() error {
	return nil
}

func (w *inMemorySlotTableWriter) String() string {
	return w.writer.String()
}
