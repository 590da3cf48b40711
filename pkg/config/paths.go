package config

import (
	"path/filepath"
)

// Paths maps the logical locations used by the tasks to globs and folders. It is created once
// and never changed.
type Paths struct {
	Root string

	SrcFolder       string
	SrcSvg          string
	SrcImgFolder    string
	SrcImages       string
	SrcScss         string
	SrcFullJs       string
	SrcMainJs       string
	SrcPartials     string
	SrcHTML         string
	ResourcesFolder string
	Resources       string

	BuildFolder    string
	BuildImgFolder string
	BuildImages    string
	BuildCssFolder string
	BuildJsFolder  string
}

// NewPaths lays out the standard folder structure below root.
func NewPaths(root, src, dist string) Paths {
	srcFolder := join(root, src)
	buildFolder := join(root, dist)

	return Paths{
		Root: root,

		SrcFolder:       srcFolder,
		SrcSvg:          filepath.Join(srcFolder, "img", "svg", "*.svg"),
		SrcImgFolder:    filepath.Join(srcFolder, "img"),
		SrcImages:       filepath.Join(srcFolder, "img", "*.{jpg,jpeg,png}"),
		SrcScss:         filepath.Join(srcFolder, "scss", "**", "*.scss"),
		SrcFullJs:       filepath.Join(srcFolder, "js", "**", "*.js"),
		SrcMainJs:       filepath.Join(srcFolder, "js", "main.js"),
		SrcPartials:     filepath.Join(srcFolder, "partials", "*.html"),
		SrcHTML:         filepath.Join(srcFolder, "*.html"),
		ResourcesFolder: filepath.Join(srcFolder, "resources"),
		Resources:       filepath.Join(srcFolder, "resources", "**"),

		BuildFolder:    buildFolder,
		BuildImgFolder: filepath.Join(buildFolder, "img"),
		BuildImages:    filepath.Join(buildFolder, "img", "*.{jpg,jpeg,png}"),
		BuildCssFolder: filepath.Join(buildFolder, "css"),
		BuildJsFolder:  filepath.Join(buildFolder, "js"),
	}
}

func join(root, p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(root, p)
}
