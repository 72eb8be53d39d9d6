package devserver

import (
	"sort"

	"github.com/pulih-app/coach/domain/entities"
)

var breathing = []entities.Phase{
	entities.PhaseInhale,
	entities.PhaseExhale,
	entities.PhaseHold,
	entities.PhaseRelease,
}

// Exercises is the built-in catalog served by the development server.
var Exercises = map[string]entities.Exercise{
	"pelvic-tilt": {
		ID:          "pelvic-tilt",
		Name:        "Pelvic Tilt",
		Description: "Lying on your back, gently flatten your lower back into the mat as you breathe out.",
		Phases:      breathing,
		Sets:        2,
		Reps:        8,
		Focus:       "pelvis",
	},
	"heel-slide": {
		ID:          "heel-slide",
		Name:        "Heel Slide",
		Description: "Slide one heel away along the floor while keeping your core gently engaged.",
		Phases:      []entities.Phase{entities.PhaseInhale, entities.PhaseExhale, entities.PhaseRelease},
		Sets:        2,
		Reps:        10,
		Focus:       "legs",
	},
	"glute-bridge": {
		ID:          "glute-bridge",
		Name:        "Glute Bridge",
		Description: "Lift your hips off the mat on the exhale, hold, and lower with control.",
		Phases:      breathing,
		Sets:        3,
		Reps:        10,
		Focus:       "core",
	},
	"shoulder-roll": {
		ID:          "shoulder-roll",
		Name:        "Shoulder Roll",
		Description: "Seated, roll your shoulders back and down to release feeding tension.",
		Phases:      []entities.Phase{entities.PhaseInhale, entities.PhaseExhale},
		Sets:        1,
		Reps:        12,
		Focus:       "shoulders",
	},
}

// ExerciseIDs returns the catalog ids in sorted order
func ExerciseIDs() []string {
	ids := make([]string, 0, len(Exercises))
	for id := range Exercises {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
