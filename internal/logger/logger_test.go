// Copyright 2023 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/jacobsa/libos/internal/cfg"
)

const (
	textTraceString   = "^time=\"[0-9/:. ]{26}\" severity=TRACE message=\"LoggerTest: trace\"\n$"
	textDebugString   = "^time=\"[0-9/:. ]{26}\" severity=DEBUG message=\"LoggerTest: debug\"\n$"
	textInfoString    = "^time=\"[0-9/:. ]{26}\" severity=INFO message=\"LoggerTest: info\"\n$"
	textWarningString = "^time=\"[0-9/:. ]{26}\" severity=WARNING message=\"LoggerTest: warning\"\n$"
	textErrorString   = "^time=\"[0-9/:. ]{26}\" severity=ERROR message=\"LoggerTest: error\"\n$"

	jsonInfoString = `^\{"timestamp":\{"seconds":\d{10},"nanos":\d{1,9}\},"severity":"INFO","message":"LoggerTest: info"\}` + "\n$"
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

func redirectLogsToGivenBuffer(buf *bytes.Buffer, level string) {
	v := programLevelFor(level)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(buf, v, "LoggerTest: "))
}

func (t *LoggerTest) SetupTest() {
	defaultLoggerFactory = &loggerFactory{format: "text", level: cfg.TRACE}
}

func (t *LoggerTest) TestTextFormat_AllSeverities() {
	buf := new(bytes.Buffer)
	redirectLogsToGivenBuffer(buf, cfg.TRACE)

	Tracef("trace")
	assert.Regexp(t.T(), regexp.MustCompile(textTraceString), buf.String())

	buf.Reset()
	Debugf("debug")
	assert.Regexp(t.T(), regexp.MustCompile(textDebugString), buf.String())

	buf.Reset()
	Infof("info")
	assert.Regexp(t.T(), regexp.MustCompile(textInfoString), buf.String())

	buf.Reset()
	Warnf("warning")
	assert.Regexp(t.T(), regexp.MustCompile(textWarningString), buf.String())

	buf.Reset()
	Errorf("error")
	assert.Regexp(t.T(), regexp.MustCompile(textErrorString), buf.String())
}

func (t *LoggerTest) TestJsonFormat() {
	buf := new(bytes.Buffer)
	defaultLoggerFactory.format = "json"
	redirectLogsToGivenBuffer(buf, cfg.INFO)

	Infof("info")
	assert.Regexp(t.T(), regexp.MustCompile(jsonInfoString), buf.String())
}

func (t *LoggerTest) TestSeverityFiltering_BelowLevelIsDropped() {
	buf := new(bytes.Buffer)
	redirectLogsToGivenBuffer(buf, cfg.WARNING)

	Infof("info")
	assert.Empty(t.T(), buf.String())

	Warnf("warning")
	assert.NotEmpty(t.T(), buf.String())
}

func (t *LoggerTest) TestSeverityFiltering_OffDropsEverything() {
	buf := new(bytes.Buffer)
	redirectLogsToGivenBuffer(buf, cfg.OFF)

	Errorf("error")
	assert.Empty(t.T(), buf.String())
}

func (t *LoggerTest) TestSetLogFormat() {
	SetLogFormat("json")
	assert.Equal(t.T(), "json", defaultLoggerFactory.format)

	SetLogFormat("text")
	assert.Equal(t.T(), "text", defaultLoggerFactory.format)
}

func (t *LoggerTest) TestSeverityName() {
	assert.Equal(t.T(), "TRACE", severityName(LevelTrace))
	assert.Equal(t.T(), "DEBUG", severityName(LevelDebug))
	assert.Equal(t.T(), "INFO", severityName(LevelInfo))
	assert.Equal(t.T(), "WARNING", severityName(LevelWarn))
	assert.Equal(t.T(), "ERROR", severityName(LevelError))
}
