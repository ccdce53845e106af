package pipeline

import (
	"fmt"
	"time"

	"github.com/apkforge/apkforge/pkg/interfaces"
	"github.com/apkforge/apkforge/pkg/logger"
	"github.com/apkforge/apkforge/pkg/types"
	"github.com/google/uuid"
)

// Session represents one end-to-end pipeline execution. It is owned
// exclusively by the controller for its lifetime and never shared across
// concurrent sessions.
type Session struct {
	ID      string
	WorkDir string
	Stage   types.Stage
	Log     []types.LogEntry

	request   types.BuildRequest
	publisher interfaces.Publisher
	logger    logger.Logger
}

func newSession(workDir string, req types.BuildRequest, pub interfaces.Publisher, log logger.Logger) *Session {
	id := uuid.NewString()
	s := &Session{
		ID:        id,
		WorkDir:   workDir,
		Stage:     types.StageIdle,
		request:   req,
		publisher: pub,
	}
	if log != nil {
		s.logger = log.WithSession(shortID(id))
	}
	return s
}

// shortID trims a uuid to the display form used in logs and fallback
// artifact names.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// setStage transitions the session and pushes a status event
func (s *Session) setStage(stage types.Stage) {
	s.Stage = stage
	if s.logger != nil {
		s.logger.Info("Stage " + string(stage))
	}
	if s.publisher != nil {
		_ = s.publisher.Publish(types.StatusEvent(stage))
	}
}

// emit appends a log entry and pushes it as a log event
func (s *Session) emit(level types.LogLevel, format string, args ...interface{}) {
	entry := types.LogEntry{
		ID:        uuid.NewString(),
		Timestamp: time.Now(),
		Message:   fmt.Sprintf(format, args...),
		Level:     level,
	}
	s.Log = append(s.Log, entry)

	if s.logger != nil {
		switch level {
		case types.LogLevelError:
			s.logger.Error(entry.Message)
		case types.LogLevelSuccess:
			s.logger.Success(entry.Message)
		default:
			s.logger.Info(entry.Message)
		}
	}
	if s.publisher != nil {
		_ = s.publisher.Publish(types.LogEvent(entry))
	}
}

// finish emits the single terminal result event for the session
func (s *Session) finish(result types.Result) {
	if result.Success {
		s.setStage(types.StageSuccess)
	} else {
		s.emit(types.LogLevelError, "%s", result.Error)
		s.setStage(types.StageError)
	}
	if s.publisher != nil {
		_ = s.publisher.Publish(types.ResultEvent(result))
	}
}
