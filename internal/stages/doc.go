// Package stages wires the movie cover pipeline: extraction, imdb, title_es,
// omdb, and translation. Each stage is a stage.Handler backed by one remote
// client; Build assembles them into the registry the workflow engine runs.
package stages
