/*
Package tui implements the terminal views of restbench.

Both views follow the Bubble Tea Model-Update-View pattern:
  - BenchModel polls a running batch and renders live progress and statistics
  - WebSocketModel drives an interactive session: the input line is sent as
    one frame per enter, and the shared message log scrolls above it

Key handling goes through a keybinds.Registry so users can remap keys.
*/
package tui
