package resourcemgr

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/marfs-core/marfs/internal/ftag"
)

// MetricsRecorder is the subset of internal/metrics.Collector a
// ResourceLog needs to publish per-operation counters; satisfied by
// *metrics.Collector without resourcemgr importing it directly, keeping
// the two packages decoupled (the caller wires a real collector in).
type MetricsRecorder interface {
	RecordOperation(operation string, duration time.Duration, size int64, success bool)
	RecordError(operation string, err error)
}

// LogType selects which of the three resourcelog roles an open log
// plays (original_source resourcelog.h's resourcelog_type). ReadLog is
// tracked as a bit flag internally so a read-mode log can still record
// which underlying type (record/modify) it is replaying, matching the
// original's own comment that RESOURCE_READ_LOG is OR'ed with one of the
// other two.
type LogType int

const (
	RecordLog LogType = 1 << iota
	ModifyLog
	ReadLog
)

func (t LogType) String() string {
	var parts []string
	if t&RecordLog != 0 {
		parts = append(parts, "RECORD")
	}
	if t&ModifyLog != 0 {
		parts = append(parts, "MODIFY")
	}
	if t&ReadLog != 0 {
		parts = append(parts, "READ")
	}
	if len(parts) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(parts, "|")
}

// OperationSummary tallies outcomes across a resourcelog's lifetime
// (original_source operation_summary).
type OperationSummary struct {
	DeletionObjectCount    int64
	DeletionObjectFailures int64
	DeletionRefCount       int64
	DeletionRefFailures    int64
	RebuildCount           int64
	RebuildFailures        int64
	RepackCount            int64
	RepackFailures         int64
}

// GenLogPath builds the on-disk path for a namespace/rank's resourcelog,
// optionally creating the intermediate directories (original_source
// resourcelog_genlogpath). A zero-value iteration or nsName with
// rank < 0 yields the shared parent directory instead of a leaf file.
func GenLogPath(create bool, logRoot, iteration, nsName string, rank int) (string, error) {
	if iteration == "" || nsName == "" || rank < 0 {
		dir := filepath.Join(logRoot, iteration, nsName)
		if create {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return "", fmt.Errorf("resourcemgr: create log parent dir %s: %w", dir, err)
			}
		}
		return dir, nil
	}
	dir := filepath.Join(logRoot, iteration, nsName)
	if create {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("resourcemgr: create log dir %s: %w", dir, err)
		}
	}
	return filepath.Join(dir, fmt.Sprintf("rank%d.log", rank)), nil
}

// inprogressEntry is one outstanding start operation a ModifyLog is
// waiting to see matching completions for (original_source's per-
// streamid "inprogress" hash table, one bucket entry per outstanding
// opchain). remaining drains toward zero as matching completion entries
// arrive via ProcessOp; failed latches once any of them carries an
// error, so the eventual Progress signal can report the segment as a
// whole having failed even if only one completion in it did.
type inprogressEntry struct {
	typ       OperationType
	fileNo    int64
	objNo     int64
	tag       ftag.FTAG
	remaining int64
	failed    bool
}

// ResourceLog is an open resourcelog file plus the in-flight-operation
// bookkeeping original_source tracks alongside it.
type ResourceLog struct {
	mu       sync.Mutex
	path     string
	typ      LogType
	file     *os.File
	writer   *bufio.Writer
	reader   *bufio.Reader
	inFlight int64
	summary  OperationSummary
	metrics  MetricsRecorder

	// inprogress holds, per streamid, the start operations a ModifyLog
	// has recorded but not yet seen every matching completion for. A
	// RecordLog never populates this: it has no persistent matching
	// state and tallies every entry it sees immediately instead.
	inprogress map[string][]*inprogressEntry
}

// SetMetrics installs a metrics sink that ProcessOp reports completion
// entries to (teacher internal/metrics.Collector.RecordOperation /
// RecordError). Optional; a nil or never-called SetMetrics leaves the
// log fully functional without a metrics dependency.
func (rl *ResourceLog) SetMetrics(m MetricsRecorder) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.metrics = m
}

// Init opens (or creates) a resourcelog at logpath for the given type
// (original_source resourcelog_init). RecordLog/ModifyLog open for
// append-write; a type with ReadLog set opens for read.
func Init(logpath string, typ LogType) (*ResourceLog, error) {
	rl := &ResourceLog{path: logpath, typ: typ}
	if typ&ReadLog != 0 {
		f, err := os.Open(logpath)
		if err != nil {
			return nil, fmt.Errorf("resourcemgr: open resourcelog %s for read: %w", logpath, err)
		}
		rl.file = f
		rl.reader = bufio.NewReader(f)
		return rl, nil
	}
	if err := os.MkdirAll(filepath.Dir(logpath), 0755); err != nil {
		return nil, fmt.Errorf("resourcemgr: create resourcelog dir for %s: %w", logpath, err)
	}
	f, err := os.OpenFile(logpath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("resourcemgr: open resourcelog %s for write: %w", logpath, err)
	}
	rl.file = f
	rl.writer = bufio.NewWriter(f)
	return rl, nil
}

const logFieldSep = "\t"
const logFieldCount = 6

// serializeOp renders one OpInfo node (ignoring Next) as a single log
// line: type, start flag, count, errval, FTAG text form, then the
// per-type ExtendedInfo encoding (spec's log-line grammar: DEL-OBJ
// offset; DEL-REF prev_active_index/delzero/eos; REBUILD markerpath/
// rtag; REPACK totalbytes). Chains are written one line per node;
// ProcessOp walks Next itself.
func serializeOp(op *OpInfo) string {
	errStr := ""
	if op.ErrVal != nil {
		errStr = op.ErrVal.Error()
	}
	fields := []string{
		strconv.Itoa(int(op.Type)),
		boolFlag(op.Start),
		strconv.FormatInt(op.Count, 10),
		errStr,
		op.FTAG.String(),
		serializeExtInfo(op.Type, op.ExtendedInfo),
	}
	return strings.Join(fields, logFieldSep)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

const extInfoSep = ","
const extInfoAbsent = "-"

// serializeExtInfo renders op's ExtendedInfo as the single trailing log
// field, per operation type (original_source logline.h's per-type union
// members). A nil info (or a type with none) serializes to extInfoAbsent.
func serializeExtInfo(typ OperationType, info interface{}) string {
	switch v := info.(type) {
	case *DeleteObjInfo:
		if v == nil {
			return extInfoAbsent
		}
		return strconv.FormatInt(v.Offset, 10)
	case *DeleteRefInfo:
		if v == nil {
			return extInfoAbsent
		}
		return strings.Join([]string{
			strconv.FormatInt(v.PrevActiveIndex, 10),
			boolFlag(v.DelZero),
			boolFlag(v.EOS),
		}, extInfoSep)
	case *RebuildInfo:
		if v == nil {
			return extInfoAbsent
		}
		rtag := extInfoAbsent
		if v.RTag != nil {
			rtag = v.RTag.String()
		}
		// rtag first: it never contains extInfoSep, so MarkerPath (which
		// might) can safely take the remainder of the field on parse.
		return rtag + extInfoSep + v.MarkerPath
	case *RepackInfo:
		if v == nil {
			return extInfoAbsent
		}
		return strconv.FormatInt(v.TotalBytes, 10)
	default:
		return extInfoAbsent
	}
}

// deserializeExtInfo parses the trailing extinfo field back into the
// ExtendedInfo value serializeExtInfo produced for typ.
func deserializeExtInfo(typ OperationType, s string) (interface{}, error) {
	if s == extInfoAbsent {
		return nil, nil
	}
	switch typ {
	case OpDeleteObject:
		off, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("resourcemgr: parse delete-object offset: %w", err)
		}
		return &DeleteObjInfo{Offset: off}, nil
	case OpDeleteRef:
		parts := strings.Split(s, extInfoSep)
		if len(parts) != 3 {
			return nil, fmt.Errorf("resourcemgr: malformed delete-ref extinfo %q", s)
		}
		prev, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("resourcemgr: parse delete-ref prev_active_index: %w", err)
		}
		return &DeleteRefInfo{
			PrevActiveIndex: prev,
			DelZero:         parts[1] == "1",
			EOS:             parts[2] == "1",
		}, nil
	case OpRebuild:
		parts := strings.SplitN(s, extInfoSep, 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("resourcemgr: malformed rebuild extinfo %q", s)
		}
		info := &RebuildInfo{MarkerPath: parts[1]}
		if parts[0] != extInfoAbsent {
			tag, err := ftag.Parse(parts[0])
			if err != nil {
				return nil, fmt.Errorf("resourcemgr: parse rebuild rtag: %w", err)
			}
			info.RTag = &tag
		}
		return info, nil
	case OpRepack:
		total, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("resourcemgr: parse repack total_bytes: %w", err)
		}
		return &RepackInfo{TotalBytes: total}, nil
	default:
		return nil, fmt.Errorf("resourcemgr: unknown operation type %d for extinfo", typ)
	}
}

func deserializeOp(line string) (*OpInfo, error) {
	parts := strings.SplitN(line, logFieldSep, logFieldCount)
	if len(parts) != logFieldCount {
		return nil, fmt.Errorf("resourcemgr: malformed log line (want %d fields, got %d)", logFieldCount, len(parts))
	}
	typInt, err := strconv.Atoi(parts[0])
	if err != nil {
		return nil, fmt.Errorf("resourcemgr: parse operation type: %w", err)
	}
	count, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("resourcemgr: parse count: %w", err)
	}
	var errVal error
	if parts[3] != "" {
		errVal = fmt.Errorf("%s", parts[3])
	}
	tag, err := ftag.Parse(parts[4])
	if err != nil {
		return nil, fmt.Errorf("resourcemgr: parse ftag field: %w", err)
	}
	typ := OperationType(typInt)
	extInfo, err := deserializeExtInfo(typ, parts[5])
	if err != nil {
		return nil, err
	}
	return &OpInfo{
		Type:         typ,
		ExtendedInfo: extInfo,
		Start:        parts[1] == "1",
		Count:        count,
		ErrVal:       errVal,
		FTAG:         tag,
	}, nil
}

// Progress is resourcelog_processop's tri-state completion signal
// (original_source's "progress" out-parameter): ProgressPending while
// the matched in-progress segment still has outstanding count,
// ProgressDone once every op in that segment has drained with no
// errors, ProgressFailed once it has drained with at least one error
// recorded against it.
type Progress int

const (
	ProgressPending Progress = 0
	ProgressDone    Progress = 1
	ProgressFailed  Progress = -1
)

// ProcessOp appends op and every entry in its Next chain to the log
// (original_source resourcelog_processop). Every node in the chain must
// share op's Start value: a chain mixing start and completion entries is
// rejected outright without writing anything (the chain-atomicity
// property).
//
// A RecordLog keeps no persistent matching state, so every entry is
// tallied into the running OperationSummary as soon as it is seen. A
// ModifyLog instead stitches start entries into a per-streamid
// in-progress table and, for each completion entry, walks to the
// matching entry (same streamid, type, fileno, objno), validates the
// rest of its FTAG agrees, and decrements its outstanding count —
// fatally, if the completion's count would decrement past zero. Once a
// matched entry's count reaches zero the call reports that segment's
// Progress (done or failed); otherwise it reports ProgressPending.
func (rl *ResourceLog) ProcessOp(op *OpInfo) (Progress, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.writer == nil {
		return ProgressPending, fmt.Errorf("resourcemgr: ProcessOp called on a log not opened for writing")
	}
	for cur := op.Next; cur != nil; cur = cur.Next {
		if cur.Start != op.Start {
			return ProgressPending, fmt.Errorf("resourcemgr: operation chain mixes start and completion entries")
		}
	}

	for cur := op; cur != nil; cur = cur.Next {
		if _, err := rl.writer.WriteString(serializeOp(cur) + "\n"); err != nil {
			return ProgressPending, fmt.Errorf("resourcemgr: write log line: %w", err)
		}
	}
	if err := rl.writer.Flush(); err != nil {
		return ProgressPending, fmt.Errorf("resourcemgr: flush resourcelog %s: %w", rl.path, err)
	}

	if rl.typ&ModifyLog == 0 {
		last := ProgressDone
		for cur := op; cur != nil; cur = cur.Next {
			rl.applySummary(cur)
			rl.reportMetrics(cur)
			if cur.ErrVal != nil {
				last = ProgressFailed
			}
		}
		return last, nil
	}

	progress := ProgressPending
	for cur := op; cur != nil; cur = cur.Next {
		if cur.Start {
			rl.startOp(cur)
			continue
		}
		p, err := rl.completeOp(cur)
		if err != nil {
			return ProgressPending, err
		}
		if p != ProgressPending {
			progress = p
		}
	}
	return progress, nil
}

func (rl *ResourceLog) reportMetrics(op *OpInfo) {
	if rl.metrics == nil {
		return
	}
	rl.metrics.RecordOperation(op.Type.String(), 0, op.Count, op.ErrVal == nil)
	if op.ErrVal != nil {
		rl.metrics.RecordError(op.Type.String(), op.ErrVal)
	}
}

// startOp stitches a start entry into the per-streamid in-progress
// table (original_source: new opchain entry under the RESOURCE_MODIFY_LOG
// branch of processopinfo).
func (rl *ResourceLog) startOp(op *OpInfo) {
	if rl.inprogress == nil {
		rl.inprogress = make(map[string][]*inprogressEntry)
	}
	streamID := op.FTAG.StreamID
	rl.inprogress[streamID] = append(rl.inprogress[streamID], &inprogressEntry{
		typ:       op.Type,
		fileNo:    op.FTAG.FileNo,
		objNo:     op.FTAG.ObjNo,
		tag:       op.FTAG,
		remaining: op.Count,
	})
}

// completeOp matches a completion entry against the in-progress start it
// closes out. Matching is by streamid/type/fileno/objno, then validated
// against the full FTAG recorded at start time; a mismatch or an
// over-decrement (completion count exceeding what remains outstanding)
// is treated as fatal, mirroring the reference implementation's
// rejection of a malformed completion chain.
func (rl *ResourceLog) completeOp(op *OpInfo) (Progress, error) {
	bucket := rl.inprogress[op.FTAG.StreamID]
	for i, entry := range bucket {
		if entry.typ != op.Type || entry.fileNo != op.FTAG.FileNo || entry.objNo != op.FTAG.ObjNo {
			continue
		}
		if entry.tag != op.FTAG {
			return ProgressPending, fmt.Errorf("resourcemgr: operation completion chain does not match outstanding operation chain")
		}
		if op.Count > entry.remaining {
			return ProgressPending, fmt.Errorf("resourcemgr: completion count %d exceeds outstanding count %d for streamid %s", op.Count, entry.remaining, op.FTAG.StreamID)
		}
		entry.remaining -= op.Count
		if op.ErrVal != nil {
			entry.failed = true
		}
		rl.applySummary(op)
		rl.reportMetrics(op)
		if entry.remaining > 0 {
			return ProgressPending, nil
		}
		rl.inprogress[op.FTAG.StreamID] = append(bucket[:i], bucket[i+1:]...)
		if entry.failed {
			return ProgressFailed, nil
		}
		return ProgressDone, nil
	}
	return ProgressPending, fmt.Errorf("resourcemgr: completion of %s op with no matching in-progress start (streamid %s)", op.Type, op.FTAG.StreamID)
}

func (rl *ResourceLog) applySummary(op *OpInfo) {
	failed := op.ErrVal != nil
	switch op.Type {
	case OpDeleteObject:
		rl.summary.DeletionObjectCount += op.Count
		if failed {
			rl.summary.DeletionObjectFailures += op.Count
		}
	case OpDeleteRef:
		rl.summary.DeletionRefCount += op.Count
		if failed {
			rl.summary.DeletionRefFailures += op.Count
		}
	case OpRebuild:
		rl.summary.RebuildCount += op.Count
		if failed {
			rl.summary.RebuildFailures += op.Count
		}
	case OpRepack:
		rl.summary.RepackCount += op.Count
		if failed {
			rl.summary.RepackFailures += op.Count
		}
	}
}

// ReadOp parses the next line from a log opened with ReadLog set
// (original_source resourcelog_readop). Returns io.EOF once the log is
// exhausted.
func (rl *ResourceLog) ReadOp() (*OpInfo, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.reader == nil {
		return nil, fmt.Errorf("resourcemgr: ReadOp called on a log not opened for reading")
	}
	line, err := rl.reader.ReadString('\n')
	if err != nil && line == "" {
		return nil, err
	}
	line = strings.TrimRight(line, "\n")
	if line == "" {
		return nil, io.EOF
	}
	return deserializeOp(line)
}

// UpdateInFlight adjusts the count of threads currently processing
// against this log (original_source resourcelog_update_inflight); delta
// may be negative.
func (rl *ResourceLog) UpdateInFlight(delta int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	rl.inFlight += delta
}

// InFlight reports the current in-flight count.
func (rl *ResourceLog) InFlight() int64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.inFlight
}

// Term finalizes the log, returning a copy of its accumulated summary
// (original_source resourcelog_term). Fails if operations are still in
// flight. When delete is true, the logfile is removed once closed.
func (rl *ResourceLog) Term(deleteFile bool) (OperationSummary, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.inFlight != 0 {
		return OperationSummary{}, fmt.Errorf("resourcemgr: cannot terminate resourcelog %s with %d ops in flight", rl.path, rl.inFlight)
	}
	if rl.writer != nil {
		if err := rl.writer.Flush(); err != nil {
			return rl.summary, fmt.Errorf("resourcemgr: flush resourcelog %s: %w", rl.path, err)
		}
	}
	if err := rl.file.Close(); err != nil {
		return rl.summary, fmt.Errorf("resourcemgr: close resourcelog %s: %w", rl.path, err)
	}
	if deleteFile {
		if err := os.Remove(rl.path); err != nil && !os.IsNotExist(err) {
			return rl.summary, fmt.Errorf("resourcemgr: delete resourcelog %s: %w", rl.path, err)
		}
	}
	return rl.summary, nil
}

// Abort closes the log immediately without waiting for in-flight
// completion or returning a summary (original_source resourcelog_abort).
func (rl *ResourceLog) Abort() error {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if rl.writer != nil {
		rl.writer.Flush()
	}
	return rl.file.Close()
}

// Replay reads every operation from input (a ReadLog-mode log), applies
// filter when non-nil to decide inclusion (filter returns true to
// include), and writes the survivors to output, then deletes and
// terminates input (original_source resourcelog_replay).
func Replay(input, output *ResourceLog, filter func(*OpInfo) bool) error {
	for {
		op, err := input.ReadOp()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("resourcemgr: replay read: %w", err)
		}
		if filter != nil && !filter(op) {
			continue
		}
		if _, err := output.ProcessOp(op); err != nil {
			return fmt.Errorf("resourcemgr: replay write: %w", err)
		}
	}
	if _, err := input.Term(true); err != nil {
		return fmt.Errorf("resourcemgr: replay terminate input: %w", err)
	}
	return nil
}
