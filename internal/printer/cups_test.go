package printer_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"cardpress/internal/logging"
	"cardpress/internal/printer"
	"cardpress/internal/services"
	"cardpress/internal/testsupport"
)

type call struct {
	name string
	args []string
}

func newBackend(t *testing.T, handler func(name string, args []string) (string, error)) (*printer.CUPS, *[]call) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	backend := printer.NewCUPS(cfg, logging.NewNop())
	calls := &[]call{}
	backend.WithCommandRunner(func(_ context.Context, name string, args ...string) (string, error) {
		*calls = append(*calls, call{name: name, args: args})
		return handler(name, args)
	})
	return backend, calls
}

func TestAvailable(t *testing.T) {
	cases := []struct {
		name        string
		output      string
		runErr      error
		wantErr     bool
		unavailable bool
	}{
		{name: "idle printer", output: "printer Test_Printer is idle.  enabled since ...\nTest_Printer accepting requests since ..."},
		{name: "disabled printer", output: "printer Test_Printer disabled since ...", wantErr: true, unavailable: true},
		{name: "unknown printer", output: "lpstat: Invalid destination name", runErr: errors.New("exit status 1"), wantErr: true, unavailable: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend, _ := newBackend(t, func(string, []string) (string, error) {
				return tc.output, tc.runErr
			})
			err := backend.Available(context.Background())
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if tc.unavailable && !errors.Is(err, services.ErrPrinterUnavailable) {
					t.Fatalf("expected printer unavailable classification, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestAvailableDetectsRejectingQueue(t *testing.T) {
	backend, _ := newBackend(t, func(_ string, args []string) (string, error) {
		if args[0] == "-a" {
			return "Test_Printer not accepting requests since ...", nil
		}
		return "printer Test_Printer is idle.", nil
	})
	err := backend.Available(context.Background())
	if !errors.Is(err, services.ErrPrinterUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestSubmitParsesJobID(t *testing.T) {
	backend, calls := newBackend(t, func(string, []string) (string, error) {
		return "request id is Test_Printer-42 (1 file(s))\n", nil
	})

	jobID, err := backend.Submit(context.Background(), printer.SubmitRequest{
		FilePath: "/staging/card.jpg",
		Title:    "Black Lotus",
	})
	if err != nil {
		t.Fatalf("Submit returned error: %v", err)
	}
	if jobID != "Test_Printer-42" {
		t.Fatalf("unexpected job id %q", jobID)
	}

	if len(*calls) != 1 || (*calls)[0].name != "lp" {
		t.Fatalf("unexpected calls %v", *calls)
	}
	joined := strings.Join((*calls)[0].args, " ")
	for _, want := range []string{
		"-d Test_Printer",
		"-t Black Lotus",
		"media=Custom.2.5x3.5in",
		"MediaType=Cardstock",
		"Resolution=300dpi",
		"ColorModel=RGB",
		"print-scaling=none",
		"-- /staging/card.jpg",
	} {
		if !strings.Contains(joined, want) {
			t.Fatalf("lp args %q missing %q", joined, want)
		}
	}
}

func TestSubmitSurfacesToolFailure(t *testing.T) {
	backend, _ := newBackend(t, func(string, []string) (string, error) {
		return "lp: The printer or class does not exist.", errors.New("exit status 1")
	})
	_, err := backend.Submit(context.Background(), printer.SubmitRequest{FilePath: "/x.jpg"})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool error, got %v", err)
	}
}

func TestPollStates(t *testing.T) {
	const jobID = "Test_Printer-7"
	activeLine := fmt.Sprintf("%s user 1024 Sat 30 Aug 2026", jobID)

	cases := []struct {
		name      string
		active    string
		completed string
		want      printer.JobState
	}{
		{name: "printing", active: activeLine, want: printer.StatePrinting},
		{name: "completed", completed: activeLine, want: printer.StateCompleted},
		{name: "vanished", want: printer.StateFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			backend, _ := newBackend(t, func(_ string, args []string) (string, error) {
				for i, arg := range args {
					if arg == "-W" && i+1 < len(args) {
						if args[i+1] == "completed" {
							return tc.completed, nil
						}
						return tc.active, nil
					}
				}
				return "", nil
			})
			state, err := backend.Poll(context.Background(), jobID)
			if err != nil {
				t.Fatalf("Poll returned error: %v", err)
			}
			if state != tc.want {
				t.Fatalf("got state %s want %s", state, tc.want)
			}
		})
	}
}

func TestPollDoesNotMatchPrefixJobIDs(t *testing.T) {
	backend, _ := newBackend(t, func(_ string, args []string) (string, error) {
		for i, arg := range args {
			if arg == "-W" && args[i+1] == "not-completed" {
				return "Test_Printer-71 user 1024", nil
			}
		}
		return "", nil
	})
	state, err := backend.Poll(context.Background(), "Test_Printer-7")
	if err != nil {
		t.Fatalf("Poll returned error: %v", err)
	}
	if state != printer.StateFailed {
		t.Fatalf("job id prefix must not match, got %s", state)
	}
}
