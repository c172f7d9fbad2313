package main

import (
	"os"

	"qrcheckin/internal/kiosk"
)

func main() { os.Exit(kiosk.Main()) }
