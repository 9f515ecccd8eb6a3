package tts

import "strings"

// supportedVoices is the Unreal Speech voice catalogue. Matching is case-sensitive.
var supportedVoices = voiceSet(
	"Autumn", "Melody", "Hannah", "Emily", "Ivy", "Kaitlyn", "Luna", "Willow", "Lauren", "Sierra",
	"Noah", "Jasper", "Caleb", "Ronan", "Ethan", "Daniel", "Zane",
	"Mei", "Lian", "Ting", "Jing",
	"Wei", "Jian", "Hao", "Sheng",
	"Lucía",
	"Mateo", "Javier",
	"Élodie",
	"Ananya", "Priya",
	"Arjun", "Rohan",
	"Giulia",
	"Luca",
	"Camila",
	"Thiago", "Rafael",
)

func voiceSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}

// DefaultVoice is used whenever the requested voice is not in the catalogue.
const DefaultVoice = "Emily"

// ResolveVoice returns the trimmed requested voice when supported, else fallback.
func ResolveVoice(requested, fallback string) string {
	candidate := strings.TrimSpace(requested)
	if _, ok := supportedVoices[candidate]; ok {
		return candidate
	}
	if _, ok := supportedVoices[fallback]; ok {
		return fallback
	}
	return DefaultVoice
}
