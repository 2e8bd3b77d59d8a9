/*
 * Copyright 2025 tomoncle.
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

package utils

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	ConfigureConsoleOutput(&buf)
	ConfigureConsoleLogFormat("json")
	defer func() {
		ConfigureConsoleOutput(os.Stdout)
		ConfigureConsoleLogFormat("text")
	}()

	l := NewLogger("json-test")
	if NewLogger("json-test") != l {
		t.Fatal("same name should return the same logger")
	}
	l.SetLevel(logrus.InfoLevel)
	l.WithField("table", "requirements").Info("Table ensured")
	l.Debug("hidden")

	var got map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got); err != nil {
		t.Fatalf("output is not one JSON line: %q: %v", buf.String(), err)
	}
	if got["msg"] != "Table ensured" || got["level"] != "info" || got["logger"] != "json-test" || got["table"] != "requirements" {
		t.Fatalf("unexpected entry %v", got)
	}
	if !strings.HasPrefix(got["caller"].(string), "logger_test.go:") {
		t.Fatalf("caller = %v", got["caller"])
	}
}

func TestLoggerLevels(t *testing.T) {
	l := logrus.New()
	RegisterLogger("levels-test", l)
	if !SetLoggerLevel("levels-test", "warn") || l.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level = %v", l.GetLevel())
	}
	if SetLoggerLevel("no-such-logger", "debug") {
		t.Fatal("unknown logger reported as set")
	}
	ConfigureLogLevel("error")
	defer ConfigureLogLevel("info")
	if l.GetLevel() != logrus.ErrorLevel {
		t.Fatalf("ConfigureLogLevel did not reach registered logger: %v", l.GetLevel())
	}
	if ParseLogLevel("bogus") != logrus.InfoLevel || ParseLogLevel(" TRACE ") != logrus.TraceLevel {
		t.Fatal("ParseLogLevel fallback or trimming broken")
	}
}

func TestTextFormatter(t *testing.T) {
	f := &Log4jColorFormatter{LoggerName: "DATABASE", NameWidth: 4, CallerWidth: 10, DisableColors: true}
	entry := &logrus.Entry{
		Time:    time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC),
		Level:   logrus.WarnLevel,
		Message: "slow query",
		Data:    logrus.Fields{"ms": 12},
	}
	b, err := f.Format(entry)
	if err != nil {
		t.Fatal(err)
	}
	line := string(b)
	for _, want := range []string{"2025-01-02 03:04:05.000", "WARNING", " DATA ", "slow query ms=12"} {
		if !strings.Contains(line, want) {
			t.Fatalf("%q missing from %q", want, line)
		}
	}
	if got := compactCaller("/src/testspec/database/hook.go", 42, 12); got != "e/hook.go:42" {
		t.Fatalf("compactCaller = %q", got)
	}
}

func TestEnvDefaults(t *testing.T) {
	t.Setenv("TESTSPEC_INT", "7")
	t.Setenv("TESTSPEC_BAD_INT", "seven")
	t.Setenv("TESTSPEC_BOOL", "true")
	t.Setenv("TESTSPEC_DURATION", "250ms")

	if EnvDefaultInt("TESTSPEC_INT", 1) != 7 || EnvDefaultInt("TESTSPEC_BAD_INT", 1) != 1 || EnvDefaultInt("TESTSPEC_UNSET", 3) != 3 {
		t.Fatal("EnvDefaultInt")
	}
	if !EnvDefaultBool("TESTSPEC_BOOL", false) || EnvDefaultBool("TESTSPEC_UNSET", false) {
		t.Fatal("EnvDefaultBool")
	}
	if EnvDefaultDuration("TESTSPEC_DURATION", time.Second) != 250*time.Millisecond {
		t.Fatal("EnvDefaultDuration")
	}
	if EnvDefaultString("TESTSPEC_UNSET", "x") != "x" {
		t.Fatal("EnvDefaultString")
	}
}
