// Package diagnostics keeps a journal of translation operations that did
// not round-trip cleanly, for later triage.
package diagnostics

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"md-translator/internal/logger"
	"md-translator/internal/translator"
	"md-translator/internal/types"
	"md-translator/internal/validator"
)

const (
	journalFile = "journal.json"

	// MaxRecords bounds the journal; the oldest records are dropped first.
	MaxRecords = 500
)

// Stage 出错阶段
type Stage string

const (
	StageLoad      Stage = "load"      // 读取编辑器内容
	StageTransform Stage = "transform" // 后端调用
	StageRestore   Stage = "restore"   // 占位符恢复
	StageRepair    Stage = "repair"    // 表格结构修复
	StageWrite     Stage = "write"     // 写回编辑器
)

// Record 一次操作的诊断记录
type Record struct {
	ID          string            `json:"id"`    // operation id
	Input       string            `json:"input"` // file path or "selection"
	Backend     string            `json:"backend"`
	Target      string            `json:"target"`
	Granularity string            `json:"granularity"`
	Stage       Stage             `json:"stage"`
	Tokens      int               `json:"tokens"`
	Resolved    map[string]int    `json:"resolved,omitempty"`
	Unresolved  map[string]int    `json:"unresolved,omitempty"`
	Issues      []validator.Issue `json:"issues,omitempty"`
	Units       int               `json:"units"`
	FailedUnits int               `json:"failed_units"`
	ErrorCode   types.ErrorCode   `json:"error_code,omitempty"`
	ErrorMsg    string            `json:"error_msg,omitempty"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Clean reports whether the operation round-tripped with nothing to triage.
func (r *Record) Clean() bool {
	return r.ErrorMsg == "" && r.FailedUnits == 0 && len(r.Unresolved) == 0 && len(r.Issues) == 0
}

// Journal persists Records as JSON under a base directory.
type Journal struct {
	baseDir string
	mu      sync.RWMutex
	records map[string]*Record // key: ID
	now     func() time.Time
}

// NewJournal opens the journal in baseDir, or ~/.md-translator/diagnostics
// when baseDir is empty.
func NewJournal(baseDir string) (*Journal, error) {
	if baseDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, types.NewAppError(types.ErrConfig, "failed to get home directory", err)
		}
		baseDir = filepath.Join(homeDir, ".md-translator", "diagnostics")
	}

	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, types.NewAppError(types.ErrConfig, "failed to create diagnostics directory", err)
	}

	j := &Journal{
		baseDir: baseDir,
		records: make(map[string]*Record),
		now:     time.Now,
	}
	if err := j.load(); err != nil {
		return nil, err
	}
	return j, nil
}

// Dir returns the journal directory.
func (j *Journal) Dir() string {
	return j.baseDir
}

// RecordResult journals one operation. Clean operations are not kept.
// opErr, when set, is the error that aborted the operation at stage.
func (j *Journal) RecordResult(input string, res *translator.Result, stage Stage, opErr error) error {
	rec := &Record{
		Input:     input,
		Stage:     stage,
		Timestamp: j.now(),
	}
	if res != nil {
		rec.ID = res.OperationID
		rec.Backend = res.Backend
		rec.Target = res.Target
		rec.Granularity = res.Granularity
		rec.Issues = res.Issues
		rec.Units = res.Units
		rec.FailedUnits = res.FailedUnits
		if res.Report != nil {
			rec.Tokens = res.Report.Total
			rec.Resolved = nonZero(res.Report.Resolved)
			rec.Unresolved = nonZero(res.Report.Unresolved)
		}
	}
	if opErr != nil {
		rec.ErrorCode = types.CodeOf(opErr)
		rec.ErrorMsg = opErr.Error()
	}
	if rec.ID == "" {
		rec.ID = rec.Timestamp.Format("20060102T150405.000000000")
	}

	if rec.Clean() {
		return nil
	}

	logger.Debug("journaling operation",
		logger.String("operation", rec.ID),
		logger.String("stage", string(rec.Stage)),
		logger.Int("unresolved", len(rec.Unresolved)),
		logger.Int("issues", len(rec.Issues)))

	j.mu.Lock()
	defer j.mu.Unlock()
	j.records[rec.ID] = rec
	j.trim()
	return j.save()
}

func nonZero(m map[string]int) map[string]int {
	var out map[string]int
	for k, v := range m {
		if v == 0 {
			continue
		}
		if out == nil {
			out = make(map[string]int)
		}
		out[k] = v
	}
	return out
}

// trim drops the oldest records beyond MaxRecords. Caller holds the lock.
func (j *Journal) trim() {
	if len(j.records) <= MaxRecords {
		return
	}
	all := j.sorted()
	for _, r := range all[:len(all)-MaxRecords] {
		delete(j.records, r.ID)
	}
}

// sorted returns records oldest first. Caller holds the lock.
func (j *Journal) sorted() []*Record {
	out := make([]*Record, 0, len(j.records))
	for _, r := range j.records {
		out = append(out, r)
	}
	sort.Slice(out, func(a, b int) bool {
		if out[a].Timestamp.Equal(out[b].Timestamp) {
			return out[a].ID < out[b].ID
		}
		return out[a].Timestamp.Before(out[b].Timestamp)
	})
	return out
}

// List returns copies of all records, oldest first.
func (j *Journal) List() []*Record {
	j.mu.RLock()
	defer j.mu.RUnlock()

	all := j.sorted()
	out := make([]*Record, len(all))
	for i, r := range all {
		c := *r
		out[i] = &c
	}
	return out
}

// Get returns a copy of one record.
func (j *Journal) Get(id string) (*Record, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	r, ok := j.records[id]
	if !ok {
		return nil, false
	}
	c := *r
	return &c, true
}

// Remove deletes one record.
func (j *Journal) Remove(id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	delete(j.records, id)
	return j.save()
}

// Clear 清除所有记录
func (j *Journal) Clear() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.records = make(map[string]*Record)
	return j.save()
}

// Summary aggregates the journal for triage.
type Summary struct {
	Operations  int                         `json:"operations"`
	Failed      int                         `json:"failed"`
	FailedUnits int                         `json:"failed_units"`
	Unresolved  map[string]int              `json:"unresolved"` // per placeholder kind
	Issues      map[validator.IssueKind]int `json:"issues"`
	ByStage     map[Stage]int               `json:"by_stage"`
}

// Summary counts unresolved kinds, structural issues and failures.
func (j *Journal) Summary() Summary {
	j.mu.RLock()
	defer j.mu.RUnlock()

	s := Summary{
		Unresolved: make(map[string]int),
		Issues:     make(map[validator.IssueKind]int),
		ByStage:    make(map[Stage]int),
	}
	for _, r := range j.records {
		s.Operations++
		if r.ErrorMsg != "" {
			s.Failed++
			s.ByStage[r.Stage]++
		}
		s.FailedUnits += r.FailedUnits
		for k, v := range r.Unresolved {
			s.Unresolved[k] += v
		}
		for _, is := range r.Issues {
			s.Issues[is.Kind]++
		}
	}
	return s
}

// StageDisplayName 获取阶段的显示名称
func StageDisplayName(stage Stage) string {
	switch stage {
	case StageLoad:
		return "读取"
	case StageTransform:
		return "翻译"
	case StageRestore:
		return "占位符恢复"
	case StageRepair:
		return "表格修复"
	case StageWrite:
		return "写回"
	default:
		return string(stage)
	}
}

func (j *Journal) load() error {
	data, err := os.ReadFile(filepath.Join(j.baseDir, journalFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return types.NewAppError(types.ErrInternal, "failed to read diagnostics journal", err)
	}

	var records []*Record
	if err := json.Unmarshal(data, &records); err != nil {
		// 损坏的日志不影响翻译
		logger.Warn("diagnostics journal is corrupt, starting fresh", logger.Err(err))
		return nil
	}
	for _, r := range records {
		j.records[r.ID] = r
	}
	return nil
}

// save writes the journal. Caller holds the lock.
func (j *Journal) save() error {
	data, err := json.MarshalIndent(j.sorted(), "", "  ")
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to marshal diagnostics journal", err)
	}
	if err := os.WriteFile(filepath.Join(j.baseDir, journalFile), data, 0644); err != nil {
		return types.NewAppError(types.ErrInternal, "failed to write diagnostics journal", err)
	}
	return nil
}
