package formats

import (
	pkgerrors "github.com/pkg/errors"

	"github.com/Faultbox/midgard-skel/pkg/math"
)

// WorldBinds resolves the model-space rest transform of every bone.
// Parents may appear after their children; cycles are reported as
// ErrMissingData.
func WorldBinds(bones []BoneDef) ([]math.Mat4, error) {
	const (
		unvisited = iota
		visiting
		done
	)

	world := make([]math.Mat4, len(bones))
	state := make([]uint8, len(bones))

	var resolve func(i int) error
	resolve = func(i int) error {
		switch state[i] {
		case done:
			return nil
		case visiting:
			return pkgerrors.Wrapf(ErrMissingData, "bone %d: parent cycle", i)
		}
		state[i] = visiting

		parent := bones[i].Parent
		if parent < 0 {
			world[i] = bones[i].Bind
		} else {
			if parent >= len(bones) {
				return pkgerrors.Wrapf(ErrMissingData, "bone %d: parent %d out of range", i, parent)
			}
			if err := resolve(parent); err != nil {
				return err
			}
			world[i] = world[parent].Mul(bones[i].Bind)
		}

		state[i] = done
		return nil
	}

	for i := range bones {
		if err := resolve(i); err != nil {
			return nil, err
		}
	}
	return world, nil
}
