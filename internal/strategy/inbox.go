package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"skipper/internal/logger"
	"skipper/internal/money"
)

// QuarantineFunc is called for every proposal file that failed validation,
// after it has been moved aside. The engine wires this to the alerter.
type QuarantineFunc func(file string, reason string)

// proposalFile is the external signal-proposal wire format. Prices arrive as
// dollar floats at this boundary only; they become cents immediately.
type proposalFile struct {
	SignalID      string  `json:"signal_id"`
	Symbol        string  `json:"symbol"`
	Side          string  `json:"side"`
	Confidence    float64 `json:"confidence"`
	Rationale     string  `json:"rationale"`
	LimitPriceUSD float64 `json:"limit_price_usd"`
}

// Inbox 从投递目录读取外部 alpha 进程丢入的 JSON 信号文件。校验失败的文件
// 移入 quarantine/ 并告警, 不会中断当日运行; 读取成功的移入 processed/。
type Inbox struct {
	name       string
	dir        string
	schema     *jsonschema.Schema
	quarantine QuarantineFunc
}

func NewInbox(name, dir, schemaPath string, quarantine QuarantineFunc) (*Inbox, error) {
	schema, err := jsonschema.Compile(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("compiling signal proposal schema %s: %w", schemaPath, err)
	}
	if quarantine == nil {
		quarantine = func(string, string) {}
	}
	return &Inbox{name: name, dir: dir, schema: schema, quarantine: quarantine}, nil
}

func (in *Inbox) Name() string { return in.name }

func (in *Inbox) GenerateSignals(ctx context.Context, _ MarketData) ([]Proposal, error) {
	entries, err := os.ReadDir(in.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("inbox %s: reading %s: %w", in.name, in.dir, err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files) // deterministic intake order

	var out []Proposal
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		path := filepath.Join(in.dir, name)
		p, err := in.readOne(path)
		if err != nil {
			logger.Errorf("信号收件箱 %s: %s 校验失败, 已隔离: %v", in.name, name, err)
			if moveErr := in.moveTo(path, "quarantine"); moveErr != nil {
				return nil, moveErr
			}
			in.quarantine(name, err.Error())
			continue
		}
		if err := in.moveTo(path, "processed"); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (in *Inbox) readOne(path string) (Proposal, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Proposal{}, err
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Proposal{}, fmt.Errorf("not valid JSON: %w", err)
	}
	if err := in.schema.Validate(doc); err != nil {
		return Proposal{}, err
	}
	var pf proposalFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return Proposal{}, err
	}
	return Proposal{
		SignalID:        pf.SignalID,
		Symbol:          strings.ToUpper(pf.Symbol),
		Side:            strings.ToUpper(pf.Side),
		Confidence:      pf.Confidence,
		Rationale:       pf.Rationale,
		LimitPriceCents: money.FromFloat(pf.LimitPriceUSD),
	}, nil
}

func (in *Inbox) moveTo(path, sub string) error {
	dest := filepath.Join(in.dir, sub)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return fmt.Errorf("inbox %s: creating %s: %w", in.name, dest, err)
	}
	if err := os.Rename(path, filepath.Join(dest, filepath.Base(path))); err != nil {
		return fmt.Errorf("inbox %s: moving %s: %w", in.name, path, err)
	}
	return nil
}
