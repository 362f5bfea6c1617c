//go:build gosseract

package main

// Registers the in-process engine as "gosseract".
import _ "github.com/jackzampolin/kaidoku/internal/ocr/gosseract"
