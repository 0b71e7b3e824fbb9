package narrowing

import "github.com/l3aro/flowtype/pkg/types"

// truthiness narrows `if x:` / `if not x:`. The positive branch drops the
// members that are always falsy, the negative branch those always truthy.
func truthiness(env Env, positive bool) Callback {
	b := env.Builtins()
	return func(t types.Type) types.Type {
		return mapMembers(b, t, func(m types.Type) types.Type {
			if positive {
				if types.CanBeTruthy(m) {
					return m
				}
				return nil
			}
			if types.CanBeFalsy(m) {
				return m
			}
			return nil
		})
	}
}
