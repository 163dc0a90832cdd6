package main

import (
	"github.com/voithos/swiftcode/internal/exercise"
	"github.com/voithos/swiftcode/internal/models"
)

// seedExercises returns the built-in exercise catalog. Deployments with a
// curated corpus replace this with a loader over their own samples.
// catalogSources lists the remote catalog entries fetched when a catalog URL
// is configured.
func catalogSources() []exercise.Source {
	return []exercise.Source{
		{Lang: "js", ProjectName: "underscore", Path: "/js/underscore/core.js"},
		{Lang: "js", ProjectName: "express", Path: "/js/express/router.js"},
		{Lang: "go", ProjectName: "httprouter", Path: "/go/httprouter/tree.go"},
		{Lang: "python", ProjectName: "requests", Path: "/python/requests/sessions.py"},
	}
}

func seedExercises() []models.Exercise {
	return []models.Exercise{
		{
			ID:          "js-add",
			Lang:        "js",
			ProjectName: "mathutils",
			Code:        "function add(a, b) {\n  return a + b;\n}",
			Typeable:    "function add(a, b) {\nreturn a + b;\n}",
		},
		{
			ID:          "js-clamp",
			Lang:        "js",
			ProjectName: "mathutils",
			Code:        "function clamp(x, lo, hi) {\n  return Math.min(Math.max(x, lo), hi);\n}",
			Typeable:    "function clamp(x, lo, hi) {\nreturn Math.min(Math.max(x, lo), hi);\n}",
		},
		{
			ID:          "go-max",
			Lang:        "go",
			ProjectName: "intutil",
			Code:        "func max(a, b int) int {\n\tif a > b {\n\t\treturn a\n\t}\n\treturn b\n}",
			Typeable:    "func max(a, b int) int {\nif a > b {\nreturn a\n}\nreturn b\n}",
		},
		{
			ID:          "py-fib",
			Lang:        "python",
			ProjectName: "sequences",
			Code:        "def fib(n):\n    a, b = 0, 1\n    for _ in range(n):\n        a, b = b, a + b\n    return a",
			Typeable:    "def fib(n):\na, b = 0, 1\nfor _ in range(n):\na, b = b, a + b\nreturn a",
		},
	}
}
