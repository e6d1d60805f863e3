package main

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/koscakluka/ema-studio/core/flow"
	"github.com/koscakluka/ema-studio/core/generation"
	"github.com/koscakluka/ema-studio/core/transcript"
)

var errUnknownCommand = errors.New("unknown command, type /help")

type commandName string

const (
	cmdHelp      commandName = "help"
	cmdFormat    commandName = "format"
	cmdImage     commandName = "image"
	cmdUse       commandName = "use"
	cmdAgain     commandName = "again"
	cmdMode      commandName = "mode"
	cmdCaption   commandName = "caption"
	cmdSkip      commandName = "skip"
	cmdEdit      commandName = "edit"
	cmdText      commandName = "text"
	cmdFont      commandName = "font"
	cmdFonts     commandName = "fonts"
	cmdAnchor    commandName = "anchor"
	cmdColor     commandName = "color"
	cmdApply     commandName = "apply"
	cmdCancel    commandName = "cancel"
	cmdRetry     commandName = "retry"
	cmdSave      commandName = "save"
	cmdReset     commandName = "reset"
	cmdStartOver commandName = "startover"
	cmdLogin     commandName = "login"
	cmdLogout    commandName = "logout"
	cmdQuit      commandName = "quit"
)

const helpText = `ctrl+r        start or stop recording
/format video|image|separate
/image <path> choose the product photo
/use          keep the cut-out preview
/again        pick another photo
/mode rigid|balanced|creative
/caption      put the caption on the image
/skip         finish without a caption
/edit <id>    edit the caption of a generated image again
/text <text>  /font <name>  /fonts  /anchor top|middle|bottom  /color #rrggbb
/apply        /cancel
/retry <id>   retry a failed step
/save <id> <path>
/reset        /startover  /login <token>  /logout  /quit`

type command struct {
	name commandName
	args string
}

func parseCommand(line string) (command, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return command{}, errUnknownCommand
	}
	name, args, _ := strings.Cut(line[1:], " ")
	cmd := command{name: commandName(strings.ToLower(name)), args: strings.TrimSpace(args)}
	switch cmd.name {
	case cmdHelp, cmdFormat, cmdImage, cmdUse, cmdAgain, cmdMode, cmdCaption, cmdSkip,
		cmdEdit, cmdText, cmdFont, cmdFonts, cmdAnchor, cmdColor, cmdApply, cmdCancel,
		cmdRetry, cmdSave, cmdReset, cmdStartOver, cmdLogin, cmdLogout, cmdQuit:
		return cmd, nil
	}
	return command{}, errUnknownCommand
}

func parseOutputFormat(arg string) (flow.OutputFormat, error) {
	format := flow.OutputFormat(strings.ToLower(arg))
	if !format.IsValid() {
		return "", fmt.Errorf("unknown format %q", arg)
	}
	return format, nil
}

func parseCompositionMode(arg string) (flow.CompositionMode, error) {
	mode := flow.CompositionMode(strings.ToLower(arg))
	if !mode.IsValid() {
		return "", fmt.Errorf("unknown composition mode %q", arg)
	}
	return mode, nil
}

func parseAnchor(arg string) (generation.Anchor, error) {
	anchor := generation.Anchor(strings.ToLower(arg))
	if !anchor.IsValid() {
		return "", fmt.Errorf("unknown anchor %q", arg)
	}
	return anchor, nil
}

func parseColor(arg string) (generation.Color, error) {
	hex := strings.TrimPrefix(strings.TrimSpace(arg), "#")
	if len(hex) != 6 {
		return generation.Color{}, fmt.Errorf("color %q is not #rrggbb", arg)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return generation.Color{}, fmt.Errorf("color %q is not #rrggbb", arg)
	}
	return generation.Color{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v)}, nil
}

func parseCorrelationID(arg string) (transcript.CorrelationID, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%q is not an entry id", arg)
	}
	return transcript.CorrelationID(id), nil
}

// loadImage reads a photo from disk. Dimensions are filled in for formats
// the image package can decode.
func loadImage(path string) (flow.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return flow.Image{}, fmt.Errorf("failed to read image: %w", err)
	}
	img := flow.Image{
		Name:        filepath.Base(path),
		ContentType: http.DetectContentType(data),
		Data:        data,
	}
	if !strings.HasPrefix(img.ContentType, "image/") {
		return flow.Image{}, fmt.Errorf("%s is not an image", path)
	}
	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		img.Width, img.Height = cfg.Width, cfg.Height
	}
	return img, nil
}
