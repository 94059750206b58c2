/*
 * Copyright 2024 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

const (
	// Color codes for terminal output
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBrown  = "\033[31;1m"
	colorReset  = "\033[0m"
)

// TimeLayout is the timestamp layout shared by the console and the log sink.
const TimeLayout = "2006-01-02 15:04:05"

var (
	mu     sync.Mutex
	output io.Writer = os.Stdout
	exit             = os.Exit
)

// SetOutput redirects console logging. Defaults to os.Stdout.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

func printf(color, level, format string, args ...interface{}) {
	timestamp := time.Now().Format(TimeLayout)
	prefix := fmt.Sprintf("%s[%s] %s ", color, level, timestamp)
	message := fmt.Sprintf(format, args...)
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(output, "%s%s%s\n", prefix, message, colorReset)
}

func Infof(format string, args ...interface{}) {
	printf(colorGreen, "INFO", format, args...)
}

func Warnf(format string, args ...interface{}) {
	printf(colorYellow, "WARN", format, args...)
}

func Errorf(format string, args ...interface{}) {
	printf(colorRed, "ERROR", format, args...)
}

// Tokenf prints without prefix or newline, for streamed model output.
func Tokenf(format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	mu.Lock()
	defer mu.Unlock()
	fmt.Fprintf(output, "%s%s%s", colorBrown, message, colorReset)
}

func Fatalf(format string, args ...interface{}) {
	printf(colorRed, "FATAL", format, args...)
	exit(1)
}

// TruncateStr truncates a string to maxLen bytes, appending "..." if truncated.
func TruncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
