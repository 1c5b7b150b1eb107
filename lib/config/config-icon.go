package config

import (
	"bytes"
	_ "embed"
	"encoding/base64"
	"image"
	"image/png"
	"os"

	"golang.org/x/image/draw"

	"mortar/lib/errco"
)

const iconSize = 64

//go:embed server-icon.png
var serverIconPNG []byte

// defaultServerIcon is the embedded icon as a favicon data url
var defaultServerIcon string = "data:image/png;base64," + base64.StdEncoding.EncodeToString(serverIconPNG)

// loadIcon returns the favicon data url of the png at iconPath.
// Images that are not 64x64 are scaled.
// If path is empty or on error, the default icon is returned.
func loadIcon(iconPath string) (string, *errco.MrtLog) {
	if iconPath == "" {
		return defaultServerIcon, nil
	}

	f, err := os.Open(iconPath)
	if err != nil {
		return defaultServerIcon, errco.NewLog(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_ICON_LOAD, err.Error())
	}
	defer f.Close()

	pngIm, err := png.Decode(f)
	if err != nil {
		return defaultServerIcon, errco.NewLog(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_ICON_LOAD, err.Error())
	}

	// scale image to 64x64
	if pngIm.Bounds().Size() != image.Pt(iconSize, iconSize) {
		errco.NewLogln(errco.TYPE_INF, errco.LVL_3, errco.ERROR_NIL, "scaling server icon from %dx%d to %dx%d", pngIm.Bounds().Dx(), pngIm.Bounds().Dy(), iconSize, iconSize)
		scaled := image.NewRGBA(image.Rect(0, 0, iconSize, iconSize))
		draw.CatmullRom.Scale(scaled, scaled.Bounds(), pngIm, pngIm.Bounds(), draw.Over, nil)
		pngIm = scaled
	}

	enc, buff := &png.Encoder{CompressionLevel: png.BestCompression}, &bytes.Buffer{}
	err = enc.Encode(buff, pngIm)
	if err != nil {
		return defaultServerIcon, errco.NewLog(errco.TYPE_WAR, errco.LVL_3, errco.ERROR_ICON_LOAD, err.Error())
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buff.Bytes()), nil
}
