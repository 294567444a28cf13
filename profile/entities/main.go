// Profiling:
// go build ./profile/entities
// go tool pprof -http=":8000" -nodefraction=0.001 ./entities mem.pprof

package main

import (
	"github.com/Machtan/complecs"
	"github.com/pkg/profile"
)

type comp1 struct {
	V int64
	W int64
}

type comp2 struct {
	V int64
	W int64
}

func main() {
	count := 50
	iters := 1000
	entities := 1000
	p := profile.Start(profile.MemProfileAllocs, profile.ProfilePath("."), profile.NoShutdownHook)
	run(count, iters, entities)
	p.Stop()
}

func schema() *complecs.Schema {
	s := complecs.NewSchema()
	complecs.RegisterComponent[comp1](s, "comp1")
	complecs.RegisterComponent[comp2](s, "comp2")
	s.AddProcess(complecs.ProcessKind{
		Name:      "sum",
		Mutable:   []string{"comp1"},
		Immutable: []string{"comp2"},
		Body: func(r *complecs.Row) {
			c1, c2 := complecs.Mut[comp1](r, 0), complecs.Ref[comp2](r, 0)
			c1.V += c2.V
			c1.W += c2.W
		},
	})
	s.AddEntity(complecs.EntityKind{Name: "pair", Components: []string{"comp1", "comp2"}, Processes: []string{"sum"}})
	return s
}

func run(rounds, iters, numEntities int) {
	for range rounds {
		w, err := complecs.NewWorld(schema(), complecs.WithCapacity(numEntities))
		if err != nil {
			panic(err)
		}
		batch := w.Builder("pair").Set("comp1", comp1{}).Set("comp2", comp2{V: 1, W: 2})
		reg, _ := w.Entities("pair")
		query := reg.Query()

		for range iters {
			if _, err := batch.AddN(numEntities); err != nil {
				panic(err)
			}
			w.Run("sum")
			query.Reset()
			for query.Next() {
				w.Remove(query.Record())
			}
		}
	}
}
