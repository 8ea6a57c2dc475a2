package blocklog

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"ledgerd/pkg/chain"
)

func blockID(t *testing.T, num uint32) chain.BlockID {
	t.Helper()
	h := sha256.Sum256([]byte(fmt.Sprintf("block-%d", num)))
	return chain.MakeBlockID(num, h)
}

func openTestLog(t *testing.T, dir string, cfg Config) *BlockLog {
	t.Helper()
	cfg.Dir = dir
	bl, err := Open(1, []byte("genesis-state"), [32]byte{}, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return bl
}

func TestAppendAndReadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	bl := openTestLog(t, dir, Config{})
	defer bl.Close()

	for i := uint32(1); i <= 5; i++ {
		payload := []byte(fmt.Sprintf("payload-%d", i))
		if _, err := bl.Append(blockID(t, i), payload); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	if got := bl.HeadBlockNum(); got != 5 {
		t.Fatalf("HeadBlockNum = %d, want 5", got)
	}

	for i := uint32(1); i <= 5; i++ {
		want := fmt.Sprintf("payload-%d", i)
		got, err := bl.ReadBlockByNum(i)
		if err != nil {
			t.Fatalf("ReadBlockByNum(%d): %v", i, err)
		}
		if string(got) != want {
			t.Fatalf("ReadBlockByNum(%d) = %q, want %q", i, got, want)
		}
	}

	head, num, err := bl.ReadHead()
	if err != nil {
		t.Fatalf("ReadHead: %v", err)
	}
	if num != 5 || string(head) != "payload-5" {
		t.Fatalf("ReadHead = (%q, %d), want (payload-5, 5)", head, num)
	}

	if _, err := bl.ReadBlockByNum(6); err == nil {
		t.Fatal("ReadBlockByNum(6) should fail, log only has 5 blocks")
	}
}

func TestAppendRejectsOutOfOrder(t *testing.T) {
	dir := t.TempDir()
	bl := openTestLog(t, dir, Config{})
	defer bl.Close()

	if _, err := bl.Append(blockID(t, 1), []byte("a")); err != nil {
		t.Fatalf("Append(1): %v", err)
	}
	if _, err := bl.Append(blockID(t, 3), []byte("c")); err == nil {
		t.Fatal("Append(3) after block 1 should fail")
	}
}

func TestReopenRecoversConsistentTail(t *testing.T) {
	dir := t.TempDir()
	bl := openTestLog(t, dir, Config{})
	for i := uint32(1); i <= 4; i++ {
		if _, err := bl.Append(blockID(t, i), []byte(fmt.Sprintf("p%d", i))); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if err := bl.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := Open(1, nil, [32]byte{}, Config{Dir: dir})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	if got := reopened.HeadBlockNum(); got != 4 {
		t.Fatalf("HeadBlockNum after reopen = %d, want 4", got)
	}
	payload, err := reopened.ReadBlockByNum(3)
	if err != nil {
		t.Fatalf("ReadBlockByNum(3) after reopen: %v", err)
	}
	if string(payload) != "p3" {
		t.Fatalf("ReadBlockByNum(3) = %q, want p3", payload)
	}
}

func TestOpenWithStrayIndexButNoLogDeletesIndex(t *testing.T) {
	dir := t.TempDir()

	// A stray index file with entries but no block file at all: Open must
	// treat this as an empty log and wipe the index rather than trust it
	// (spec.md 4.E, "empty/non-empty -> delete index").
	idxPath := filepath.Join(dir, indexFileName)
	if err := os.WriteFile(idxPath, make([]byte, indexEntrySize*3), 0644); err != nil {
		t.Fatalf("write stray index: %v", err)
	}

	bl, err := Open(1, []byte("genesis-state"), [32]byte{}, Config{Dir: dir})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer bl.Close()
	if !bl.Empty() {
		t.Fatal("expected empty log after opening with stray index and no log")
	}
	if _, err := bl.Append(blockID(t, 1), []byte("p1")); err != nil {
		t.Fatalf("Append(1) after recovery: %v", err)
	}
}

func TestPruneDeallocatesOldPayloadsButKeepsNumbering(t *testing.T) {
	dir := t.TempDir()
	bl := openTestLog(t, dir, Config{PruneBlocks: 2, PruneThreshold: 2})
	defer bl.Close()

	for i := uint32(1); i <= 8; i++ {
		if _, err := bl.Append(blockID(t, i), []byte(fmt.Sprintf("p%d", i))); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	if !bl.Pruned() {
		t.Fatal("expected log to be marked pruned")
	}
	if got := bl.HeadBlockNum(); got != 8 {
		t.Fatalf("HeadBlockNum = %d, want 8 (pruning must not change numbering)", got)
	}
	firstAvail := bl.FirstAvailableBlockNum()
	if firstAvail <= 1 {
		t.Fatalf("FirstAvailableBlockNum = %d, want >1 after pruning", firstAvail)
	}

	if _, err := bl.ReadBlockByNum(1); err == nil {
		t.Fatal("ReadBlockByNum(1) should fail, payload was pruned")
	}
	if _, err := bl.ReadBlockByNum(8); err != nil {
		t.Fatalf("ReadBlockByNum(8) should still succeed: %v", err)
	}
}

func TestVacuumRestoresFullLog(t *testing.T) {
	dir := t.TempDir()
	bl := openTestLog(t, dir, Config{PruneBlocks: 1, PruneThreshold: 1})

	payloads := map[uint32]string{}
	for i := uint32(1); i <= 4; i++ {
		p := fmt.Sprintf("p%d", i)
		payloads[i] = p
		if _, err := bl.Append(blockID(t, i), []byte(p)); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	if !bl.Pruned() {
		t.Fatal("expected pruning to have kicked in")
	}

	src := stubBlockSource{payloads: payloads}
	if err := bl.Vacuum(src); err != nil {
		t.Fatalf("Vacuum: %v", err)
	}
	if bl.Pruned() {
		t.Fatal("expected log to be unpruned after vacuum")
	}
	for i := uint32(1); i <= 4; i++ {
		got, err := bl.ReadBlockByNum(i)
		if err != nil {
			t.Fatalf("ReadBlockByNum(%d) after vacuum: %v", i, err)
		}
		if string(got) != payloads[i] {
			t.Fatalf("ReadBlockByNum(%d) = %q, want %q", i, got, payloads[i])
		}
	}
	bl.Close()
}

type stubBlockSource struct {
	payloads map[uint32]string
}

func (s stubBlockSource) BlockPayload(num uint32) ([]byte, error) {
	return []byte(s.payloads[num]), nil
}

func TestExtractRange(t *testing.T) {
	dir := t.TempDir()
	bl := openTestLog(t, dir, Config{})
	for i := uint32(1); i <= 6; i++ {
		if _, err := bl.Append(blockID(t, i), []byte(fmt.Sprintf("p%d", i))); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}
	defer bl.Close()

	destDir := t.TempDir()
	if err := bl.Extract(2, 4, destDir, false); err != nil {
		t.Fatalf("Extract: %v", err)
	}

	extracted, err := Open(2, nil, [32]byte{}, Config{Dir: destDir})
	if err != nil {
		t.Fatalf("open extracted log: %v", err)
	}
	defer extracted.Close()

	if got := extracted.HeadBlockNum(); got != 4 {
		t.Fatalf("extracted HeadBlockNum = %d, want 4", got)
	}
	payload, err := extracted.ReadBlockByNum(3)
	if err != nil {
		t.Fatalf("ReadBlockByNum(3) on extracted log: %v", err)
	}
	if string(payload) != "p3" {
		t.Fatalf("ReadBlockByNum(3) = %q, want p3", payload)
	}
}
