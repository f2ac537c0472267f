// File: internal/history/manager.go
package history

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/slidescope/slidescope/api/schemas"
)

// Manager owns the ordered multi-turn message history presented to the model
// each step, and the run's turn log. The step counter is derived from the
// turn log, never mutated independently: appending a Turn is the only way
// the current step advances, which keeps the message history and the
// navigation budget from drifting apart.
type Manager struct {
	logger *zap.Logger

	systemPrompt string
	thumbnailMsg schemas.Message
	maxSteps     int
	imageWindow  int
	turns        []Turn
}

// NewManager builds a history manager. imageWindow is the number of most
// recent crop images retained in the upstream message history; older turns
// keep their text and get a placeholder in place of the embedded image.
// The window shapes the upstream view only, never the turn log itself.
func NewManager(logger *zap.Logger, systemPrompt string, maxSteps, imageWindow int) *Manager {
	if imageWindow < 1 {
		imageWindow = 1
	}
	return &Manager{
		logger:       logger.Named("history"),
		systemPrompt: systemPrompt,
		maxSteps:     maxSteps,
		imageWindow:  imageWindow,
	}
}

// SetThumbnail installs the initial user message: the axis-guide thumbnail
// and the question prompt. It is always the first user message of the run.
func (m *Manager) SetThumbnail(prompt string, thumbnailJPEG []byte) {
	m.thumbnailMsg = schemas.Message{
		Role: schemas.RoleUser,
		Parts: []schemas.Part{
			schemas.TextPart(prompt),
			schemas.ImagePart(thumbnailJPEG),
		},
	}
}

// CurrentStep is 1-based and derived: len(turns)+1.
func (m *Manager) CurrentStep() int { return len(m.turns) + 1 }

// IsFinalStep reports whether the run is on its last configured step.
func (m *Manager) IsFinalStep() bool { return m.CurrentStep() == m.maxSteps }

// MaxSteps returns the configured step ceiling.
func (m *Manager) MaxSteps() int { return m.maxSteps }

// Turns returns the recorded turn log. Callers must treat it as read-only.
func (m *Manager) Turns() []Turn { return m.turns }

// AppendTurn records a completed step. This is the single step-advancing
// operation. The turn log is append-only and never loses data; the image
// retention window is applied only when upstream messages are assembled.
func (m *Manager) AppendTurn(t Turn) {
	t.ID = uuid.NewString()
	t.StepIndex = m.CurrentStep()
	t.CreatedAt = time.Now().UTC()
	m.turns = append(m.turns, t)

	m.logger.Debug("Turn recorded",
		zap.Int("step", t.StepIndex),
		zap.String("action", string(t.Action.Type)),
	)
}

// Messages assembles the ordered message list for the next model call.
// Message 0 is always the full system prompt; it is never abbreviated on
// later turns. The first user message is the thumbnail prompt; each recorded
// turn contributes the model's reply and the crop-result observation.
// Crop images older than the trailing retention window are replaced by a
// text placeholder here, in the upstream view only: the underlying turns
// keep their bytes for the trajectory. Assembly is deterministic (a pure
// function of turn positions) and safe to repeat.
func (m *Manager) Messages() []schemas.Message {
	msgs := make([]schemas.Message, 0, 2+2*len(m.turns))
	msgs = append(msgs, schemas.Message{
		Role:  schemas.RoleSystem,
		Parts: []schemas.Part{schemas.TextPart(m.systemPrompt)},
	})
	msgs = append(msgs, m.thumbnailMsg)

	cutoff := len(m.turns) - m.imageWindow
	for i, t := range m.turns {
		msgs = append(msgs, modelMessage(t))
		if obs := observationMessage(t, i < cutoff); obs != nil {
			msgs = append(msgs, *obs)
		}
	}
	return msgs
}

// modelMessage reconstructs the model's side of a recorded turn.
func modelMessage(t Turn) schemas.Message {
	actionJSON, err := json.MarshalToString(t.Action)
	if err != nil {
		actionJSON = fmt.Sprintf("%+v", t.Action)
	}
	text := fmt.Sprintf("%s\nAction: %s", t.Reasoning, actionJSON)
	return schemas.Message{
		Role:  schemas.RoleModel,
		Parts: []schemas.Part{schemas.TextPart(text)},
	}
}

// observationMessage builds the user-side observation for a turn, carrying
// the crop image only while the turn is inside the retention window.
func observationMessage(t Turn, imageElided bool) *schemas.Message {
	if t.Observation == "" && t.CropJPEG == nil {
		return nil
	}
	parts := []schemas.Part{}
	if t.Observation != "" {
		parts = append(parts, schemas.TextPart(t.Observation))
	}
	if t.CropJPEG != nil {
		if imageElided {
			parts = append(parts, schemas.Part{
				Text:        fmt.Sprintf("[image from step %d elided to bound context growth]", t.StepIndex),
				ImagePruned: true,
			})
		} else {
			parts = append(parts, schemas.ImagePart(t.CropJPEG))
		}
	}
	return &schemas.Message{Role: schemas.RoleUser, Parts: parts}
}
