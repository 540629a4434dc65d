package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	logx "mailwatch/pkg/logx"
)

// fileStore is a dependency-free persistence backend.
//
// Files:
//   - <prefix>.audit.jsonl   (append-only JSON Lines)
//   - <prefix>.processed.log (append-only, one message id per line, UTF-8)
//
// The processed log is replayed into memory at startup. Entries are
// permanent, so there is no compaction.
type fileStore struct {
	log logx.Logger

	mu sync.Mutex

	auditFile *os.File

	processedFile *os.File
	processed     map[string]struct{}
}

func openFile(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for file driver")
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	auditPath := prefix + ".audit.jsonl"
	processedPath := prefix + ".processed.log"

	af, err := os.OpenFile(auditPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}

	processed := map[string]struct{}{}
	if err := replayProcessed(processedPath, processed); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn("processed journal replay failed", logx.Err(err), logx.String("path", processedPath))
	}

	pf, err := os.OpenFile(processedPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		_ = af.Close()
		return nil, err
	}

	return &fileStore{
		log:           log,
		auditFile:     af,
		processedFile: pf,
		processed:     processed,
	}, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var err1, err2 error
	if s.auditFile != nil {
		err1 = s.auditFile.Close()
		s.auditFile = nil
	}
	if s.processedFile != nil {
		err2 = s.processedFile.Close()
		s.processedFile = nil
	}
	if err1 != nil {
		return err1
	}
	return err2
}

func (s *fileStore) AppendAudit(ctx context.Context, e AuditEntry) error {
	_ = ctx
	if e.At.IsZero() {
		e.At = time.Now()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.auditFile == nil {
		return errors.New("audit file closed")
	}
	return json.NewEncoder(s.auditFile).Encode(e)
}

func (s *fileStore) Seen(ctx context.Context, id string) (bool, error) {
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return false, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processed[id]
	return ok, nil
}

func (s *fileStore) MarkProcessed(ctx context.Context, id string) error {
	_ = ctx
	id = strings.TrimSpace(id)
	if id == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.processedFile == nil {
		return errors.New("processed journal closed")
	}
	if _, ok := s.processed[id]; ok {
		return nil
	}
	if _, err := s.processedFile.WriteString(id + "\n"); err != nil {
		return err
	}
	s.processed[id] = struct{}{}
	return nil
}

func replayProcessed(path string, out map[string]struct{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		id := strings.TrimSpace(sc.Text())
		if id == "" {
			continue
		}
		out[id] = struct{}{}
	}
	return sc.Err()
}
