package main

import (
	"github.com/gekko3d/dissolve"
	"github.com/gekko3d/dissolve/render/core"
	"github.com/go-gl/glfw/v3.3/glfw"
)

var keyToGlfw = map[dissolve.Key]glfw.Key{
	dissolve.KeyW:      glfw.KeyW,
	dissolve.KeyA:      glfw.KeyA,
	dissolve.KeyS:      glfw.KeyS,
	dissolve.KeyD:      glfw.KeyD,
	dissolve.KeyE:      glfw.KeyE,
	dissolve.KeyTab:    glfw.KeyTab,
	dissolve.KeyEscape: glfw.KeyEscape,
}

// pollWindow samples the window once per step. The cursor is hidden and
// unbounded while the input has it captured.
func pollWindow(w *glfw.Window) dissolve.Poller {
	captured := false
	return func(in *dissolve.Input) {
		glfw.PollEvents()
		for key, glfwKey := range keyToGlfw {
			in.Pressed[key] = w.GetKey(glfwKey) == glfw.Press
		}
		in.Pressed[dissolve.MouseButtonLeft] = w.GetMouseButton(glfw.MouseButtonLeft) == glfw.Press
		in.MouseX, in.MouseY = w.GetCursorPos()
		in.CloseRequested = w.ShouldClose()

		if in.MouseCaptured != captured {
			captured = in.MouseCaptured
			if captured {
				w.SetInputMode(glfw.CursorMode, glfw.CursorDisabled)
			} else {
				w.SetInputMode(glfw.CursorMode, glfw.CursorNormal)
			}
		}
	}
}

func extentOf(width, height int) core.Extent {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return core.Extent{Width: uint32(width), Height: uint32(height)}
}
