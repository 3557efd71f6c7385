//go:build js && wasm

package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"syscall/js"

	"github.com/segstudio/maskengine/internal/engine"
	"github.com/segstudio/maskengine/internal/gesture"
)

var (
	eng     *engine.Engine
	onFrame js.Func
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// Drag updates and metadata rewrites are coalesced into the next
	// animation frame; unchanged frames are not re-rendered.
	onFrame = js.FuncOf(func(this js.Value, args []js.Value) interface{} {
		if !eng.Frame() {
			return nil
		}
		if cb := js.Global().Get("maskEngineOnFrame"); cb.Type() == js.TypeFunction {
			cb.Invoke(js.ValueOf(eng.Render()))
		}
		return nil
	})
	scheduler := gesture.FrameSchedulerFunc(func() {
		js.Global().Call("requestAnimationFrame", onFrame)
	})

	eng = engine.NewEngine(
		engine.WithFrameScheduler(scheduler),
		engine.WithLogger(logger),
	)
	go eng.Run(context.Background())

	// Create the engine API object
	maskEngine := js.Global().Get("Object").New()

	// --- Commands (frontend → backend) ---
	maskEngine.Set("loadResults", js.FuncOf(loadResults))
	maskEngine.Set("loadSampleResults", js.FuncOf(loadSampleResults))
	maskEngine.Set("clearResults", js.FuncOf(clearResults))
	maskEngine.Set("removeMask", js.FuncOf(removeMask))
	maskEngine.Set("setViewport", js.FuncOf(setViewport))
	maskEngine.Set("select", js.FuncOf(selectMask))
	maskEngine.Set("pointerDown", js.FuncOf(pointerDown))
	maskEngine.Set("pointerMove", js.FuncOf(pointerMove))
	maskEngine.Set("pointerUp", js.FuncOf(pointerUp))
	maskEngine.Set("pointerCancel", js.FuncOf(pointerCancel))
	maskEngine.Set("flipHorizontal", js.FuncOf(maskCommand(eng.FlipHorizontal)))
	maskEngine.Set("flipVertical", js.FuncOf(maskCommand(eng.FlipVertical)))
	maskEngine.Set("toggleRotationMode", js.FuncOf(maskCommand(eng.ToggleRotationMode)))
	maskEngine.Set("toggleHidden", js.FuncOf(maskCommand(eng.ToggleHidden)))
	maskEngine.Set("resetTransform", js.FuncOf(maskCommand(eng.ResetTransform)))
	maskEngine.Set("applyImageEdit", js.FuncOf(applyImageEdit))
	maskEngine.Set("tick", js.FuncOf(tick))

	// --- Queries (frontend ← backend) ---
	maskEngine.Set("render", js.FuncOf(render))
	maskEngine.Set("hitTest", js.FuncOf(hitTest))
	maskEngine.Set("getMaskState", js.FuncOf(maskQuery(eng.GetMaskState, "{}")))
	maskEngine.Set("getFilter", js.FuncOf(maskQuery(eng.GetFilter, "")))
	maskEngine.Set("getMetadata", js.FuncOf(maskQuery(eng.GetMetadata, "{}")))
	maskEngine.Set("getSelection", js.FuncOf(getSelection))
	maskEngine.Set("getResults", js.FuncOf(getResults))
	maskEngine.Set("getGestureState", js.FuncOf(getGestureState))
	maskEngine.Set("takeCommits", js.FuncOf(takeCommits))
	maskEngine.Set("takeMetadataChanges", js.FuncOf(takeMetadataChanges))

	// Register on global scope
	js.Global().Set("maskEngine", maskEngine)

	// Signal that WASM is ready
	js.Global().Set("maskEngineWasmReady", js.ValueOf(true))

	// Keep Go runtime alive
	select {}
}

func ok() interface{} {
	return js.ValueOf(map[string]interface{}{"ok": true})
}

func fail(msg string) interface{} {
	return js.ValueOf(map[string]interface{}{"error": msg})
}

func pointerArgs(args []js.Value) (x, y float64, id int, valid bool) {
	if len(args) < 3 {
		return 0, 0, 0, false
	}
	return args[0].Float(), args[1].Float(), args[2].Int(), true
}

// --- Command Handlers ---

func loadResults(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return fail("missing results JSON")
	}

	if err := eng.LoadResults(args[0].String()); err != nil {
		return fail(err.Error())
	}

	return ok()
}

func loadSampleResults(this js.Value, args []js.Value) interface{} {
	eng.LoadSampleResults()
	return ok()
}

func clearResults(this js.Value, args []js.Value) interface{} {
	eng.ClearResults()
	return nil
}

func removeMask(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return nil
	}
	eng.RemoveMask(args[0].String())
	return nil
}

func setViewport(this js.Value, args []js.Value) interface{} {
	if len(args) < 3 {
		return nil
	}
	eng.SetViewport(args[0].Float(), args[1].Float(), args[2].Float())
	return nil
}

func selectMask(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 || args[0].Type() != js.TypeString {
		eng.Select("")
		return nil
	}
	eng.Select(args[0].String())
	return nil
}

func pointerDown(this js.Value, args []js.Value) interface{} {
	x, y, id, valid := pointerArgs(args)
	if !valid {
		return js.ValueOf("{}")
	}
	return js.ValueOf(eng.PointerDown(x, y, id))
}

func pointerMove(this js.Value, args []js.Value) interface{} {
	if x, y, id, valid := pointerArgs(args); valid {
		eng.PointerMove(x, y, id)
	}
	return nil
}

func pointerUp(this js.Value, args []js.Value) interface{} {
	if x, y, id, valid := pointerArgs(args); valid {
		eng.PointerUp(x, y, id)
	}
	return nil
}

func pointerCancel(this js.Value, args []js.Value) interface{} {
	if len(args) < 1 {
		return nil
	}
	eng.PointerCancel(args[0].Int())
	return nil
}

func maskCommand(fn func(maskID string)) func(js.Value, []js.Value) interface{} {
	return func(this js.Value, args []js.Value) interface{} {
		if len(args) < 1 {
			return nil
		}
		fn(args[0].String())
		return nil
	}
}

func applyImageEdit(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return fail("missing mask id or edits JSON")
	}
	if err := eng.ApplyImageEdit(args[0].String(), args[1].String()); err != nil {
		return fail(err.Error())
	}
	return ok()
}

func tick(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.Tick())
}

// --- Query Handlers ---

func render(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.Render())
}

func hitTest(this js.Value, args []js.Value) interface{} {
	if len(args) < 2 {
		return js.ValueOf("{}")
	}
	return js.ValueOf(eng.HitTest(args[0].Float(), args[1].Float()))
}

func maskQuery(fn func(maskID string) string, empty string) func(js.Value, []js.Value) interface{} {
	return func(this js.Value, args []js.Value) interface{} {
		if len(args) < 1 {
			return js.ValueOf(empty)
		}
		return js.ValueOf(fn(args[0].String()))
	}
}

func getSelection(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.GetSelection())
}

func getResults(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.GetResults())
}

func getGestureState(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.GetGestureState())
}

func takeCommits(this js.Value, args []js.Value) interface{} {
	return js.ValueOf(eng.TakeCommits())
}

func takeMetadataChanges(this js.Value, args []js.Value) interface{} {
	data, err := json.Marshal(eng.TakeMetadataChanges())
	if err != nil {
		return js.ValueOf("[]")
	}
	return js.ValueOf(string(data))
}
