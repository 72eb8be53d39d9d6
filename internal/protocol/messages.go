package protocol

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/pulih-app/coach/domain/entities"
)

// MessageType defines the type of a session message
type MessageType string

// Client to server message types
const (
	MessageTypeStart   MessageType = "start"
	MessageTypeBegin   MessageType = "begin"
	MessageTypeFrame   MessageType = "frame"
	MessageTypeControl MessageType = "control"
)

// Server to client message types
const (
	MessageTypeAck          MessageType = "ack"
	MessageTypeState        MessageType = "state"
	MessageTypeFeedback     MessageType = "feedback"
	MessageTypeSessionEnded MessageType = "session_ended"
	MessageTypeError        MessageType = "error"
)

// ControlAction is the action carried by a control message
type ControlAction string

const (
	ActionPause  ControlAction = "pause"
	ActionResume ControlAction = "resume"
	ActionRest   ControlAction = "rest"
	ActionEnd    ControlAction = "end"
)

var (
	// ErrUnknownType is returned for messages whose type is not part of the protocol.
	ErrUnknownType = errors.New("unknown message type")
	// ErrInvalidMessage is returned for messages that fail validation.
	ErrInvalidMessage = errors.New("invalid message")
)

// BaseMessage defines the common structure for all session messages
type BaseMessage struct {
	Type MessageType `json:"type"`
}

// StartMessage opens the protocol session for an exercise
type StartMessage struct {
	BaseMessage
	ExerciseID string `json:"exercise_id"`
	UserID     string `json:"user_id"`
	UseLLM     bool   `json:"use_llm"`
}

// BeginMessage asks the server to start analysing frames
type BeginMessage struct {
	BaseMessage
}

// FrameMessage carries one base64 JPEG frame
type FrameMessage struct {
	BaseMessage
	Data string `json:"data"`
}

// ControlMessage changes the server-side session flow
type ControlMessage struct {
	BaseMessage
	Action ControlAction `json:"action"`
}

// AckMessage acknowledges a start message
type AckMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// ProgressData is the set/rep/phase position inside a state push
type ProgressData struct {
	CurrentSet int     `json:"current_set"`
	TotalSets  int     `json:"total_sets"`
	CurrentRep int     `json:"current_rep"`
	TotalReps  int     `json:"total_reps"`
	Phase      string  `json:"phase"`
	Progress   float64 `json:"progress"`
}

// AnalysisData carries the pose analysis result
type AnalysisData struct {
	Score *float64 `json:"score,omitempty"`
}

// StateData is the data object of a state push
type StateData struct {
	Progress     *ProgressData `json:"progress,omitempty"`
	Analysis     *AnalysisData `json:"analysis,omitempty"`
	SessionState string        `json:"session_state,omitempty"`
}

// StateMessage is the periodic server push while a session runs
type StateMessage struct {
	BaseMessage
	Data          StateData              `json:"data"`
	Keypoints     Keypoints              `json:"keypoints,omitempty"`
	SkeletonColor string                 `json:"skeleton_color,omitempty"`
	Feedback      *entities.FeedbackItem `json:"feedback,omitempty"`
}

// FeedbackMessage is a standalone coaching message
type FeedbackMessage struct {
	BaseMessage
	Feedback entities.FeedbackItem `json:"feedback"`
}

// SessionEndedMessage closes the session with a summary
type SessionEndedMessage struct {
	BaseMessage
	Summary entities.SessionSummary `json:"summary"`
}

// ErrorMessage is a non-fatal server error
type ErrorMessage struct {
	BaseMessage
	Message string `json:"message"`
}

// NewStart creates a start message
func NewStart(exerciseID, userID string, useLLM bool) *StartMessage {
	return &StartMessage{
		BaseMessage: BaseMessage{Type: MessageTypeStart},
		ExerciseID:  exerciseID,
		UserID:      userID,
		UseLLM:      useLLM,
	}
}

// NewBegin creates a begin message
func NewBegin() *BeginMessage {
	return &BeginMessage{BaseMessage: BaseMessage{Type: MessageTypeBegin}}
}

// NewFrame creates a frame message from raw JPEG bytes
func NewFrame(jpeg []byte) *FrameMessage {
	return &FrameMessage{
		BaseMessage: BaseMessage{Type: MessageTypeFrame},
		Data:        base64.StdEncoding.EncodeToString(jpeg),
	}
}

// NewControl creates a control message
func NewControl(action ControlAction) *ControlMessage {
	return &ControlMessage{
		BaseMessage: BaseMessage{Type: MessageTypeControl},
		Action:      action,
	}
}

// NewAck creates an ack message
func NewAck(message string) *AckMessage {
	return &AckMessage{BaseMessage: BaseMessage{Type: MessageTypeAck}, Message: message}
}

// NewFeedback creates a standalone feedback message
func NewFeedback(item entities.FeedbackItem) *FeedbackMessage {
	return &FeedbackMessage{BaseMessage: BaseMessage{Type: MessageTypeFeedback}, Feedback: item}
}

// NewSessionEnded creates a session_ended message
func NewSessionEnded(summary entities.SessionSummary) *SessionEndedMessage {
	return &SessionEndedMessage{BaseMessage: BaseMessage{Type: MessageTypeSessionEnded}, Summary: summary}
}

// NewError creates an error message
func NewError(message string) *ErrorMessage {
	return &ErrorMessage{BaseMessage: BaseMessage{Type: MessageTypeError}, Message: message}
}

// Encode serializes a message for the wire
func Encode(msg interface{}) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return data, nil
}

// Keypoints decodes either an object keyed by landmark index or an array
// indexed by landmark. Null array entries are skipped.
type Keypoints entities.Pose

type wireKeypoint struct {
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Visibility *float64 `json:"visibility"`
}

func (w wireKeypoint) keypoint() entities.Keypoint {
	// A landmark without a confidence is reported as fully visible.
	vis := 1.0
	if w.Visibility != nil {
		vis = *w.Visibility
	}
	return entities.Keypoint{X: w.X, Y: w.Y, Visibility: vis}
}

// UnmarshalJSON implements json.Unmarshaler
func (k *Keypoints) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*k = nil
		return nil
	}

	out := make(Keypoints)

	var list []*wireKeypoint
	if err := json.Unmarshal(data, &list); err == nil {
		for idx, w := range list {
			if w == nil || !entities.ValidLandmark(idx) {
				continue
			}
			out[idx] = w.keypoint()
		}
		*k = out
		return nil
	}

	var byIndex map[string]wireKeypoint
	if err := json.Unmarshal(data, &byIndex); err != nil {
		return fmt.Errorf("keypoints must be an array or an object: %w", err)
	}
	for key, w := range byIndex {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return fmt.Errorf("invalid landmark index %q", key)
		}
		if !entities.ValidLandmark(idx) {
			continue
		}
		out[idx] = w.keypoint()
	}
	*k = out
	return nil
}

// Pose returns the keypoints as a pose
func (k Keypoints) Pose() entities.Pose {
	return entities.Pose(k)
}

// Decoder parses and validates incoming session messages
type Decoder struct{}

// NewDecoder creates a new message decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

func peekType(data []byte) (MessageType, error) {
	var base BaseMessage
	if err := json.Unmarshal(data, &base); err != nil {
		return "", fmt.Errorf("invalid JSON format: %w", err)
	}
	if base.Type == "" {
		return "", fmt.Errorf("%w: missing type field", ErrInvalidMessage)
	}
	return base.Type, nil
}

// DecodeServerMessage decodes a server to client message into its typed form
func (d *Decoder) DecodeServerMessage(data []byte) (interface{}, error) {
	msgType, err := peekType(data)
	if err != nil {
		return nil, err
	}

	switch msgType {
	case MessageTypeAck:
		var msg AckMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid ack message: %w", err)
		}
		return &msg, nil

	case MessageTypeState:
		var msg StateMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid state message: %w", err)
		}
		if msg.Feedback != nil {
			normalizeFeedback(msg.Feedback)
		}
		return &msg, nil

	case MessageTypeFeedback:
		var msg FeedbackMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid feedback message: %w", err)
		}
		normalizeFeedback(&msg.Feedback)
		return &msg, nil

	case MessageTypeSessionEnded:
		var msg SessionEndedMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid session_ended message: %w", err)
		}
		return &msg, nil

	case MessageTypeError:
		var msg ErrorMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid error message: %w", err)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, msgType)
	}
}

// DecodeClientMessage decodes a client to server message into its typed form
func (d *Decoder) DecodeClientMessage(data []byte) (interface{}, error) {
	msgType, err := peekType(data)
	if err != nil {
		return nil, err
	}

	switch msgType {
	case MessageTypeStart:
		var msg StartMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid start message: %w", err)
		}
		if msg.ExerciseID == "" {
			return nil, fmt.Errorf("%w: exercise_id is required", ErrInvalidMessage)
		}
		return &msg, nil

	case MessageTypeBegin:
		return NewBegin(), nil

	case MessageTypeFrame:
		var msg FrameMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid frame message: %w", err)
		}
		if msg.Data == "" {
			return nil, fmt.Errorf("%w: data is required", ErrInvalidMessage)
		}
		return &msg, nil

	case MessageTypeControl:
		var msg ControlMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, fmt.Errorf("invalid control message: %w", err)
		}
		switch msg.Action {
		case ActionPause, ActionResume, ActionRest, ActionEnd:
		default:
			return nil, fmt.Errorf("%w: action must be one of: pause, resume, rest, end", ErrInvalidMessage)
		}
		return &msg, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, msgType)
	}
}

// FrameBytes decodes the JPEG payload of a frame message
func (m *FrameMessage) FrameBytes() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(m.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: frame data is not base64: %v", ErrInvalidMessage, err)
	}
	return data, nil
}

// ToProgress converts wire progress into the entity form
func (p *ProgressData) ToProgress() entities.Progress {
	phase, _ := entities.ParsePhase(p.Phase)
	return entities.Progress{
		CurrentSet: p.CurrentSet,
		TotalSets:  p.TotalSets,
		CurrentRep: p.CurrentRep,
		TotalReps:  p.TotalReps,
		Phase:      phase,
		Percent:    p.Progress,
	}
}

func normalizeFeedback(item *entities.FeedbackItem) {
	item.Kind = entities.NormalizeFeedbackKind(string(item.Kind))
}
