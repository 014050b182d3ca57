package liveness

import "math"

// Landmark is one facial point in normalized image coordinates (0..1, origin
// top-left), as produced by the detector on the capture device.
type Landmark struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Landmarks is the named subset of detector points the prompt predicates
// read. Values are normalized, so thresholds below are resolution-independent.
type Landmarks struct {
	LeftEyeTop     Landmark `json:"left_eye_top"`
	LeftEyeBottom  Landmark `json:"left_eye_bottom"`
	RightEyeTop    Landmark `json:"right_eye_top"`
	RightEyeBottom Landmark `json:"right_eye_bottom"`
	MouthLeft      Landmark `json:"mouth_left"`
	MouthRight     Landmark `json:"mouth_right"`
	UpperLip       Landmark `json:"upper_lip"`
	LowerLip       Landmark `json:"lower_lip"`
	NoseTip        Landmark `json:"nose_tip"`
	FaceLeft       Landmark `json:"face_left"`
	FaceRight      Landmark `json:"face_right"`
	Forehead       Landmark `json:"forehead"`
	Chin           Landmark `json:"chin"`
}

// Prompt pairs a user-facing instruction with the geometric predicate that
// decides whether the latest landmark set satisfies it. Adding a prompt means
// adding a table entry; the engine never special-cases prompt IDs.
type Prompt struct {
	ID          string
	Instruction string
	Satisfied   func(lm Landmarks) bool
}

const (
	PromptBlink     = "blink"
	PromptSmile     = "smile"
	PromptTurnLeft  = "turn_left"
	PromptTurnRight = "turn_right"
	PromptMouthOpen = "mouth_open"
	PromptTiltUp    = "tilt_up"
	PromptTiltDown  = "tilt_down"
)

const (
	blinkEyelidGap    = 0.01
	smileWidthRatio   = 2.3
	smileMinHeight    = 0.03
	turnNoseOffset    = 0.05
	mouthOpenLipGap   = 0.08
	tiltUpNoseRatio   = 0.4
	tiltDownNoseRatio = 0.6
)

// DefaultPrompts returns the built-in challenge table.
func DefaultPrompts() []Prompt {
	return []Prompt{
		{
			ID:          PromptBlink,
			Instruction: "Blink both eyes",
			Satisfied: func(lm Landmarks) bool {
				left := math.Abs(lm.LeftEyeBottom.Y - lm.LeftEyeTop.Y)
				right := math.Abs(lm.RightEyeBottom.Y - lm.RightEyeTop.Y)
				return left < blinkEyelidGap && right < blinkEyelidGap
			},
		},
		{
			ID:          PromptSmile,
			Instruction: "Smile",
			Satisfied: func(lm Landmarks) bool {
				width := math.Abs(lm.MouthRight.X - lm.MouthLeft.X)
				height := math.Abs(lm.LowerLip.Y - lm.UpperLip.Y)
				if height <= 0 {
					return false
				}
				return width/height > smileWidthRatio && height > smileMinHeight
			},
		},
		{
			ID:          PromptTurnLeft,
			Instruction: "Turn your head left",
			Satisfied: func(lm Landmarks) bool {
				return lm.NoseTip.X < faceCenterX(lm)-turnNoseOffset
			},
		},
		{
			ID:          PromptTurnRight,
			Instruction: "Turn your head right",
			Satisfied: func(lm Landmarks) bool {
				return lm.NoseTip.X > faceCenterX(lm)+turnNoseOffset
			},
		},
		{
			ID:          PromptMouthOpen,
			Instruction: "Open your mouth",
			Satisfied: func(lm Landmarks) bool {
				return math.Abs(lm.LowerLip.Y-lm.UpperLip.Y) > mouthOpenLipGap
			},
		},
		{
			ID:          PromptTiltUp,
			Instruction: "Tilt your head up",
			Satisfied: func(lm Landmarks) bool {
				r, ok := noseRatio(lm)
				return ok && r < tiltUpNoseRatio
			},
		},
		{
			ID:          PromptTiltDown,
			Instruction: "Tilt your head down",
			Satisfied: func(lm Landmarks) bool {
				r, ok := noseRatio(lm)
				return ok && r > tiltDownNoseRatio
			},
		},
	}
}

func faceCenterX(lm Landmarks) float64 {
	return (lm.FaceLeft.X + lm.FaceRight.X) / 2
}

// noseRatio places the nose tip on the forehead-to-chin axis: 0 at the
// forehead, 1 at the chin. Degenerate landmark sets report not-ok.
func noseRatio(lm Landmarks) (float64, bool) {
	span := lm.Chin.Y - lm.Forehead.Y
	if span <= 0 {
		return 0, false
	}
	return (lm.NoseTip.Y - lm.Forehead.Y) / span, true
}
