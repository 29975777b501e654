package main

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"cvscanner-backend/resume/model"
	"cvscanner-backend/resume/render"
)

func main() {
	outPath := flag.String("out", "./out/sample_resume.docx", "output path for generated DOCX")
	templatePath := flag.String("template", "", "DOCX template; empty uses the built-in layout")
	flag.Parse()

	formatted := sampleFormatted()

	docxBytes, err := render.New(*templatePath).Render(context.Background(), formatted)
	if err != nil {
		fmt.Fprintf(os.Stderr, "render failed: %v (field %q)\n", err, render.FieldOf(err))
		os.Exit(1)
	}

	if err := writeOutputs(*outPath, formatted, docxBytes); err != nil {
		fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
		os.Exit(1)
	}

	if err := validateRenderedDocx(*outPath); err != nil {
		fmt.Fprintf(os.Stderr, "render validation failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("OK: wrote %s\n", *outPath)
}

func writeOutputs(outPath string, formatted model.Formatted, docxBytes []byte) error {
	dir := filepath.Dir(outPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(outPath, docxBytes, 0o644); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(formatted, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "sample_resume_formatted.json"), payload, 0o644)
}

func sampleFormatted() model.Formatted {
	return model.Formatted{
		FullName:   "Laura Restrepo Díaz",
		Profession: "Ingeniera de Datos",
		Summary:    "Ingeniera con 7 años construyendo plataformas de datos.\nLidera equipos de ingesta y calidad.",
		Contact: model.Contact{
			Address: "Medellín, Colombia",
			Email:   "laura.restrepo@example.com",
			Website: "https://github.com/laurard",
		},
		Expertise:       []string{"Go", "PostgreSQL", "AWS", "Airflow"},
		KeyAchievements: []string{"Redujo el costo de almacenamiento en 30%."},
		Experience: []model.Experience{
			{
				JobTitle:  "Líder de Ingeniería de Datos",
				Company:   "Banco Andino",
				StartDate: "2021-02",
				EndDate:   "Actual",
				Responsibilities: []string{
					"Diseñó el lago de datos corporativo.",
					"Implementó validaciones de calidad automatizadas.",
				},
			},
			{
				JobTitle:         "Ingeniera de Software",
				Company:          "Logística del Valle",
				StartDate:        "2017-06",
				EndDate:          "2021-01",
				Responsibilities: []string{"Construyó servicios de rastreo de envíos."},
			},
		},
		Education: []model.Education{
			{Degree: "Ingeniería de Sistemas", Institution: "Universidad EAFIT", StartDate: "2011", EndDate: "2016"},
		},
		Languages:      []string{"Español", "Inglés"},
		Certifications: []string{"AWS Certified Data Engineer"},
	}.Normalize()
}

func validateRenderedDocx(path string) error {
	docxBytes, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	reader, err := zip.NewReader(bytes.NewReader(docxBytes), int64(len(docxBytes)))
	if err != nil {
		return err
	}

	for _, file := range reader.File {
		if strings.ReplaceAll(file.Name, "\\", "/") != "word/document.xml" {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return err
		}
		defer rc.Close()

		content, err := io.ReadAll(rc)
		if err != nil {
			return err
		}
		if pos := strings.Index(string(content), "{{"); pos != -1 {
			return fmt.Errorf("unresolved template tokens near: %s", snippetAround(string(content), pos, 200))
		}
		return nil
	}
	return fmt.Errorf("document.xml not found in docx")
}

func snippetAround(text string, pos, maxLen int) string {
	start := max(0, pos-maxLen/2)
	end := min(len(text), start+maxLen)
	return text[start:end]
}
