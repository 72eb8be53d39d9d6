package entities

// Landmark indices of the 33-point body pose vocabulary.
const (
	Nose = iota
	LeftEyeInner
	LeftEye
	LeftEyeOuter
	RightEyeInner
	RightEye
	RightEyeOuter
	LeftEar
	RightEar
	MouthLeft
	MouthRight
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftPinky
	RightPinky
	LeftIndex
	RightIndex
	LeftThumb
	RightThumb
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	LeftHeel
	RightHeel
	LeftFootIndex
	RightFootIndex

	LandmarkCount
)

// VisibilityThreshold is the confidence a keypoint must exceed to be drawn.
const VisibilityThreshold = 0.5

// Keypoint is a normalized 2D landmark position plus detector confidence
type Keypoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Visibility float64 `json:"visibility"`
}

// Visible reports whether the keypoint may be drawn or connected
func (k Keypoint) Visible() bool {
	return k.Visibility > VisibilityThreshold
}

// Pose maps landmark index to keypoint for one frame
type Pose map[int]Keypoint

// Clone returns an independent copy of the pose
func (p Pose) Clone() Pose {
	if p == nil {
		return nil
	}
	out := make(Pose, len(p))
	for idx, kp := range p {
		out[idx] = kp
	}
	return out
}

// ValidLandmark reports whether idx belongs to the landmark vocabulary
func ValidLandmark(idx int) bool {
	return idx >= 0 && idx < LandmarkCount
}
