package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/echotrails/native/internal/command"
	"github.com/echotrails/native/internal/events"
)

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	return fs
}

// runCommand executes one command and prints its result to stdout.
func runCommand(ctx context.Context, svc *command.Service, args []string, stdout, stderr io.Writer) error {
	name, rest := args[0], args[1:]

	switch name {
	case "download":
		fs := newFlagSet(name, stderr)
		url := fs.String("url", "", "URL of the installable package")
		version := fs.String("version", "", "Version tag; names the cache slot")
		md5 := fs.String("md5", "", "Expected MD5 digest (optional, case-insensitive)")

		if err := fs.Parse(rest); err != nil {
			return err
		}

		path, err := svc.Download(ctx, command.DownloadRequest{URL: *url, Version: *version, MD5: *md5})
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(stdout, path)

		return err
	case "open-installable":
		fs := newFlagSet(name, stderr)
		path := fs.String("path", "", "Path of the package to install")

		if err := fs.Parse(rest); err != nil {
			return err
		}

		return svc.OpenInstallable(ctx, *path)
	case "file-info":
		fs := newFlagSet(name, stderr)
		path := fs.String("path", "", "Path of the media file")

		if err := fs.Parse(rest); err != nil {
			return err
		}

		info, err := svc.GetFileInfo(ctx, *path)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(info)
	case "upload":
		fs := newFlagSet(name, stderr)
		key := fs.String("key", "", "Correlation key reported with progress events")
		path := fs.String("path", "", "File path or content identifier to upload")
		url := fs.String("url", "", "Destination URL for the PUT request")

		if err := fs.Parse(rest); err != nil {
			return err
		}

		return svc.Upload(ctx, command.UploadRequest{Key: *key, FilePath: *path, URL: *url})
	case "save-to-pictures":
		fs := newFlagSet(name, stderr)
		fileName := fs.String("name", "", "File name inside the pictures directory")
		src := fs.String("src", "", "Local file whose bytes are saved")

		if err := fs.Parse(rest); err != nil {
			return err
		}

		if *src == "" {
			return fmt.Errorf("%w: src is required", command.ErrInvalidArgument)
		}

		data, err := os.ReadFile(*src)
		if err != nil {
			return fmt.Errorf("failed to read source: %w", err)
		}

		path, err := svc.SaveToPictures(ctx, command.SaveRequest{FileName: *fileName, Data: data})
		if err != nil {
			return err
		}

		_, err = fmt.Fprintln(stdout, path)

		return err
	}

	return errors.New("unknown command " + name + " (want download, open-installable, file-info, upload or save-to-pictures)")
}

// streamEmitter writes events as JSON lines, used in place of the websocket
// hub when running a single command.
type streamEmitter struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func newStreamEmitter(w io.Writer) *streamEmitter {
	return &streamEmitter{enc: json.NewEncoder(w)}
}

func (s *streamEmitter) Emit(name string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.enc.Encode(events.Message{Event: name, Payload: payload})
}
