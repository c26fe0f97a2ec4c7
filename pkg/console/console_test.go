package console

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func getTestConsole(input string) (*Console, *bytes.Buffer) {
	var out bytes.Buffer

	return &Console{
		In:          strings.NewReader(input),
		Out:         &out,
		Interactive: func() bool { return true },
	}, &out
}

func TestConfirmYes(t *testing.T) {
	for _, input := range []string{"y\n", "YES\n", " yes \n"} {
		console, _ := getTestConsole(input)

		confirmed, err := console.Confirm(context.Background(), "Continue?")

		if err != nil || !confirmed {
			t.Fatalf(`%q should confirm got %t %v`, input, confirmed, err)
		}
	}
}

func TestConfirmDefaultsToNo(t *testing.T) {
	for _, input := range []string{"\n", "n\n", "maybe\n", ""} {
		console, _ := getTestConsole(input)

		confirmed, err := console.Confirm(context.Background(), "Continue?")

		if err != nil || confirmed {
			t.Fatalf(`%q should decline got %t %v`, input, confirmed, err)
		}
	}
}

func TestConfirmPrintsPrompt(t *testing.T) {
	console, out := getTestConsole("y\n")
	console.Confirm(context.Background(), "Enable two networks?")

	if !strings.Contains(out.String(), "Enable two networks?") || !strings.Contains(out.String(), "[y/N]") {
		t.Fatalf(`unexpected prompt %q`, out.String())
	}
}

func TestAssumeYes(t *testing.T) {
	console, out := getTestConsole("")
	console.AssumeYes = true
	console.Interactive = func() bool { return false }

	confirmed, err := console.Confirm(context.Background(), "Continue?")

	if err != nil || !confirmed {
		t.Fatalf(`assume yes should confirm got %t %v`, confirmed, err)
	}

	if out.Len() != 0 {
		t.Fatal(`no prompt should be printed`)
	}
}

func TestNotInteractive(t *testing.T) {
	console, _ := getTestConsole("y\n")
	console.Interactive = func() bool { return false }

	_, err := console.Confirm(context.Background(), "Continue?")

	if !errors.Is(err, ErrNotInteractive) {
		t.Fatalf(`expected ErrNotInteractive got %v`, err)
	}
}

func TestConfirmCancelled(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()

	var out bytes.Buffer
	console := &Console{In: reader, Out: &out, Interactive: func() bool { return true }}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := console.Confirm(ctx, "Continue?")

	if !errors.Is(err, context.Canceled) {
		t.Fatalf(`expected context.Canceled got %v`, err)
	}
}

func TestConfirmSequentialAnswers(t *testing.T) {
	console, _ := getTestConsole("y\nn\n")

	first, err := console.Confirm(context.Background(), "Enable testnet-10?")

	if err != nil || !first {
		t.Fatalf(`first answer should confirm got %t %v`, first, err)
	}

	second, err := console.Confirm(context.Background(), "Enable testnet-11?")

	if err != nil || second {
		t.Fatalf(`second answer should decline got %t %v`, second, err)
	}
}

func TestConfirmAfterCancelledPrompt(t *testing.T) {
	reader, writer := io.Pipe()
	defer writer.Close()

	var out bytes.Buffer
	console := &Console{In: reader, Out: &out, Interactive: func() bool { return true }}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := console.Confirm(ctx, "Continue?"); !errors.Is(err, context.Canceled) {
		t.Fatalf(`expected context.Canceled got %v`, err)
	}

	go writer.Write([]byte("yes\n"))

	confirmed, err := console.Confirm(context.Background(), "Continue?")

	if err != nil || !confirmed {
		t.Fatalf(`answer after a cancelled prompt should confirm got %t %v`, confirmed, err)
	}
}
