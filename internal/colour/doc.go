// Package colour defines the colour values carried by metalines.
//
// A Colour is a plain comparable value: two colours are equal when they are
// on the same ground (foreground or background) and share an RGB triple. The
// ten base hues and their normal/bold variants live in an explicitly built
// Palette; Default is constructed once at package initialisation.
package colour
