package config

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// xmlConfig mirrors the legacy CalibratedPhotometricStereo document:
//
//	<CalibratedPhotometricStereo>
//	  <DirectoryOutput>out/</DirectoryOutput>
//	  <ReflectanceModel>Lambertian</ReflectanceModel>
//	  <Observation>
//	    <DirectoryObservation>data/</DirectoryObservation>
//	    <ObservationMask>mask.png</ObservationMask>
//	    <Color>3</Color>
//	    <ObservationSingle>
//	      <Image>img0.png</Image>
//	      <LightDirection>0.0 0.0 1.0;</LightDirection>
//	      <LightIntensity>1.0</LightIntensity>
//	    </ObservationSingle>
//	  </Observation>
//	</CalibratedPhotometricStereo>
type xmlConfig struct {
	XMLName          xml.Name `xml:"CalibratedPhotometricStereo"`
	DirectoryOutput  string   `xml:"DirectoryOutput"`
	ReflectanceModel string   `xml:"ReflectanceModel"`
	Observation      struct {
		DirectoryObservation string `xml:"DirectoryObservation"`
		ObservationMask      string `xml:"ObservationMask"`
		Color                string `xml:"Color"`
		Singles              []struct {
			Image          string `xml:"Image"`
			LightDirection string `xml:"LightDirection"`
			LightIntensity string `xml:"LightIntensity"`
		} `xml:"ObservationSingle"`
	} `xml:"Observation"`
}

// parseXML reads the legacy layout. Settings that the XML document cannot
// express keep their defaults.
func parseXML(data []byte) (*Config, error) {
	var doc xmlConfig
	if err := xml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	cfg.DirectoryOutput = strings.TrimSpace(doc.DirectoryOutput)
	cfg.ReflectanceModel = strings.TrimSpace(doc.ReflectanceModel)
	cfg.Observation.Directory = strings.TrimSpace(doc.Observation.DirectoryObservation)
	cfg.Observation.Mask = strings.TrimSpace(doc.Observation.ObservationMask)

	if s := strings.TrimSpace(doc.Observation.Color); s != "" {
		color, err := strconv.Atoi(s)
		if err != nil {
			return nil, fmt.Errorf("Color: %w", err)
		}
		cfg.Observation.Color = color
	}

	cfg.Observation.Images = make([]ImageEntry, 0, len(doc.Observation.Singles))
	for i, single := range doc.Observation.Singles {
		dir, err := ParseDirection(single.LightDirection)
		if err != nil {
			return nil, fmt.Errorf("ObservationSingle %d: %w", i, err)
		}
		intensity := 1.0
		if s := strings.TrimSpace(single.LightIntensity); s != "" {
			intensity, err = strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("ObservationSingle %d: LightIntensity: %w", i, err)
			}
		}
		cfg.Observation.Images = append(cfg.Observation.Images, ImageEntry{
			Image:          strings.TrimSpace(single.Image),
			LightDirection: Direction(dir),
			LightIntensity: intensity,
		})
	}

	return cfg, nil
}
