// Package adaptertest provides a link-agnostic conformance suite for
// transport adapters.
//
// The suite expects the transport to front a freshly reset device (real or
// emulated) and checks mailbox, bulk and register traffic plus error
// normalization.
package adaptertest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/radio-control/fhc/internal/adapter"
	"github.com/radio-control/fhc/internal/fh"
)

// ConformanceResult represents the result of a conformance check.
type ConformanceResult struct {
	TestName string
	Passed   bool
	Error    string
	Duration time.Duration
}

// ConformanceReport represents the complete conformance report.
type ConformanceReport struct {
	AdapterName   string
	TotalTests    int
	PassedTests   int
	FailedTests   int
	Results       []ConformanceResult
	OverallPassed bool
	Duration      time.Duration
}

type check struct {
	name string
	run  func(ctx context.Context, tr adapter.Transport) error
}

var checks = []check{
	{"Mailbox_ConfigRoundTrip", checkConfigRoundTrip},
	{"Mailbox_UnknownOpcode", checkUnknownOpcode},
	{"Mailbox_HighPriority", checkHighPriority},
	{"Bulk_StagingRoundTrip", checkStagingRoundTrip},
	{"Bulk_OversizeRejected", checkOversize},
	{"Register_HopTrigger", checkHopTrigger},
	{"Context_Cancelled", checkCancelled},
}

// RunConformance runs every check against a new transport from newTransport.
func RunConformance(t *testing.T, name string, newTransport func(t *testing.T) adapter.Transport) {
	startTime := time.Now()
	report := &ConformanceReport{AdapterName: name, OverallPassed: true}

	for _, c := range checks {
		tr := newTransport(t)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		start := time.Now()
		err := c.run(ctx, tr)
		cancel()

		result := ConformanceResult{TestName: c.name, Passed: err == nil, Duration: time.Since(start)}
		if err != nil {
			result.Error = err.Error()
		}
		report.addResult(result)
	}
	report.Duration = time.Since(startTime)

	printConformanceReport(t, report)
	if !report.OverallPassed {
		t.Fatalf("transport conformance failed: %d/%d checks passed", report.PassedTests, report.TotalTests)
	}
}

func checkConfigRoundTrip(ctx context.Context, tr adapter.Transport) error {
	cfg := fh.DefaultConfig()
	cfg.Mode = fh.ModeLORetuneRealtime
	cfg.MinFrameDurationUs = 250
	cfg.RxZeroIF = true

	if err := tr.SendMailbox(ctx, append([]byte{fh.OpConfigure}, fh.EncodeConfig(cfg)...), adapter.PriorityNormal); err != nil {
		return fmt.Errorf("configure: %w", err)
	}
	if err := tr.SendMailbox(ctx, []byte{fh.OpConfigInspect}, adapter.PriorityNormal); err != nil {
		return fmt.Errorf("inspect: %w", err)
	}
	b, err := tr.BulkRead(ctx, adapter.ScopeReadback, fh.ConfigSize)
	if err != nil {
		return fmt.Errorf("readback: %w", err)
	}
	got, err := fh.DecodeConfig(b)
	if err != nil {
		return err
	}
	if got != cfg {
		return fmt.Errorf("config mismatch: got %+v want %+v", got, cfg)
	}
	return nil
}

func checkUnknownOpcode(ctx context.Context, tr adapter.Transport) error {
	err := adapter.Normalize(tr.SendMailbox(ctx, []byte{0xEE}, adapter.PriorityNormal), nil)
	if !errors.Is(err, adapter.ErrInvalidParam) {
		return fmt.Errorf("unknown opcode should map to INVALID_PARAM, got %v", err)
	}
	return nil
}

func checkHighPriority(ctx context.Context, tr adapter.Transport) error {
	if err := tr.SendMailbox(ctx, []byte{fh.OpTableSet, fh.TableB.Wire()}, adapter.PriorityHigh); err != nil {
		return fmt.Errorf("table set: %w", err)
	}
	if err := tr.SendMailbox(ctx, []byte{fh.OpTableGet}, adapter.PriorityNormal); err != nil {
		return fmt.Errorf("table get: %w", err)
	}
	b, err := tr.BulkRead(ctx, adapter.ScopeReadback, 1)
	if err != nil {
		return err
	}
	if len(b) != 1 || b[0] != fh.TableB.Wire() {
		return fmt.Errorf("selected table readback %v, want [%d]", b, fh.TableB.Wire())
	}
	return nil
}

func checkStagingRoundTrip(ctx context.Context, tr adapter.Transport) error {
	data := make([]byte, fh.TableHeaderSize+fh.MaxTableFrames*fh.FrameSize)
	for i := range data {
		data[i] = byte(i*7 + 3)
	}
	if err := tr.BulkWrite(ctx, adapter.ScopeStaging, data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	got, err := tr.BulkRead(ctx, adapter.ScopeStaging, len(data))
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if !bytes.Equal(got, data) {
		return fmt.Errorf("staging readback differs from written data")
	}
	return nil
}

func checkOversize(ctx context.Context, tr adapter.Transport) error {
	err := adapter.Normalize(tr.BulkWrite(ctx, adapter.ScopeStaging, make([]byte, adapter.ScopeSize+1)), nil)
	if !errors.Is(err, adapter.ErrInvalidParam) {
		return fmt.Errorf("oversized write should map to INVALID_PARAM, got %v", err)
	}
	return nil
}

func checkHopTrigger(ctx context.Context, tr adapter.Transport) error {
	return tr.WriteRegister(ctx, adapter.RegHopTrigger, 1)
}

func checkCancelled(ctx context.Context, tr adapter.Transport) error {
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := tr.SendMailbox(cctx, []byte{fh.OpTableGet}, adapter.PriorityNormal); err == nil {
		return fmt.Errorf("mailbox with cancelled context should fail")
	}
	return nil
}

func (r *ConformanceReport) addResult(result ConformanceResult) {
	r.TotalTests++
	if result.Passed {
		r.PassedTests++
	} else {
		r.FailedTests++
		r.OverallPassed = false
	}
	r.Results = append(r.Results, result)
}

func printConformanceReport(t *testing.T, report *ConformanceReport) {
	t.Logf("%s", strings.Repeat("=", 72))
	t.Logf("TRANSPORT CONFORMANCE: %s  passed %d/%d in %v",
		report.AdapterName, report.PassedTests, report.TotalTests, report.Duration)
	for _, result := range report.Results {
		status := "PASS"
		if !result.Passed {
			status = "FAIL"
		}
		t.Logf("%-28s %-5s %-12s %s", result.TestName, status, result.Duration, result.Error)
	}
	t.Logf("%s", strings.Repeat("=", 72))
}
