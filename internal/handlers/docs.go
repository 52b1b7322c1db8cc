package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
)

const (
	apiTitle   = "Speed Map API"
	apiVersion = "1.0.0"
)

type object = map[string]interface{}

func schemaRef(name string) object {
	return object{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema object) object {
	return object{"application/json": object{"schema": schema}}
}

func pathParam(name, description string, schemaType string) object {
	return object{"name": name, "in": "path", "required": true, "description": description, "schema": object{"type": schemaType}}
}

// operation builds one OpenAPI operation; body and ok may be nil
func operation(summary, tag string, params []object, body object, okCode string, ok object, errs ...string) object {
	responses := object{}
	if ok != nil {
		responses[okCode] = object{"description": "Successful response", "content": jsonContent(ok)}
	} else {
		responses[okCode] = object{"description": "Successful response"}
	}
	for _, code := range errs {
		responses[code] = object{"description": statusText(code), "content": jsonContent(schemaRef("Error"))}
	}

	op := object{"summary": summary, "tags": []string{tag}, "responses": responses}
	if len(params) > 0 {
		op["parameters"] = params
	}
	if body != nil {
		op["requestBody"] = object{"required": true, "content": jsonContent(body)}
	}
	return op
}

func statusText(code string) string {
	n, _ := strconv.Atoi(code)
	return http.StatusText(n)
}

var (
	idParam   = pathParam("id", "Project ID", "string")
	cellParam = []object{idParam, pathParam("col", "Grid column", "integer"), pathParam("row", "Grid row", "integer")}
)

func openAPIPaths() object {
	id := []object{idParam}
	return object{
		"/api/projects": object{
			"get": operation("List projects, most recently updated first", "projects", []object{
				{"name": "page", "in": "query", "schema": object{"type": "integer", "default": 1}},
				{"name": "limit", "in": "query", "schema": object{"type": "integer", "default": 50}},
			}, nil, "200", object{"type": "object", "properties": object{
				"data":        object{"type": "array", "items": schemaRef("Project")},
				"total":       object{"type": "integer"},
				"page":        object{"type": "integer"},
				"limit":       object{"type": "integer"},
				"total_pages": object{"type": "integer"},
			}}),
			"post": operation("Create a project", "projects", nil,
				object{"type": "object", "properties": object{"name": object{"type": "string"}}}, "201", schemaRef("Project"), "400"),
		},
		"/api/projects/{id}": object{
			"get":    operation("Get a project with its measurements", "projects", id, nil, "200", schemaRef("Project"), "404"),
			"patch":  operation("Rename a project", "projects", id, object{"type": "object", "properties": object{"name": object{"type": "string"}}}, "200", schemaRef("Project"), "400", "404"),
			"delete": operation("Delete a project", "projects", id, nil, "204", nil, "404"),
		},
		"/api/projects/{id}/floorplan": object{
			"get": object{
				"summary": "Download the floor-plan image", "tags": []string{"floorplan"}, "parameters": id,
				"responses": object{"200": object{"description": "Image bytes"}, "404": object{"description": "Not Found"}},
			},
			"put": object{
				"summary": "Upload a floor-plan image (png, jpeg, gif, bmp or webp)", "tags": []string{"floorplan"}, "parameters": id,
				"requestBody": object{"required": true, "content": object{"application/octet-stream": object{"schema": object{"type": "string", "format": "binary"}}}},
				"responses":   object{"200": object{"description": "Updated project", "content": jsonContent(schemaRef("Project"))}},
			},
		},
		"/api/projects/{id}/grid/density": object{
			"put": operation("Size the grid by density", "grid", id, object{"type": "object", "properties": object{
				"density": object{"type": "string", "enum": []string{"coarse", "medium", "fine"}},
			}}, "200", schemaRef("Project"), "400", "404"),
		},
		"/api/projects/{id}/grid/scale": object{
			"put": operation("Calibrate the floor plan and size the grid in meters", "grid", id, object{"type": "object", "properties": object{
				"point1":             schemaRef("Point"),
				"point2":             schemaRef("Point"),
				"wall_length_meters": object{"type": "number"},
				"cell_size_meters":   object{"type": "number"},
			}}, "200", schemaRef("Project"), "400", "404"),
		},
		"/api/projects/{id}/grid/offset": object{
			"put": operation("Drag the grid origin by a screen delta", "grid", id, object{"type": "object", "properties": object{
				"dx": object{"type": "number"}, "dy": object{"type": "number"}, "scale": object{"type": "number"},
			}}, "200", schemaRef("Project"), "404"),
		},
		"/api/projects/{id}/cells/{col}/{row}": object{
			"get": operation("Get the measurement at a cell", "measurements", cellParam, nil, "200", schemaRef("Measurement"), "404"),
			"put": operation("Store a manual measurement at a cell", "measurements", cellParam, object{"type": "object", "properties": object{
				"download_mbps": object{"type": "number"}, "upload_mbps": object{"type": "number"},
			}}, "200", schemaRef("Measurement"), "400", "404"),
			"delete": operation("Remove the measurement at a cell", "measurements", cellParam, nil, "204", nil, "404"),
		},
		"/api/projects/{id}/cells/{col}/{row}/scan": object{
			"post": operation("Run a speed test and store it at a cell", "measurements", cellParam, object{"type": "object", "properties": object{
				"runs": object{"type": "integer", "minimum": 1, "maximum": 5},
			}}, "200", object{"type": "object", "properties": object{"measurement": schemaRef("Measurement"), "speedtest": object{"type": "object"}}}, "400", "404", "502"),
		},
		"/api/projects/{id}/measurements": object{
			"delete": operation("Remove every measurement", "measurements", id, nil, "200", object{"type": "object", "properties": object{"deleted": object{"type": "integer"}}}, "404"),
		},
		"/api/projects/{id}/suggestion": object{
			"get": operation("Next cell to measure", "coverage", id, nil, "200", object{"type": "object", "properties": object{
				"cell": schemaRef("Cell"), "found": object{"type": "boolean"},
			}}, "404"),
		},
		"/api/projects/{id}/hit-test": object{
			"post": operation("Resolve a screen point to a cell", "coverage", id, object{"type": "object", "properties": object{
				"container": schemaRef("Size"), "viewport": schemaRef("Viewport"), "x": object{"type": "number"}, "y": object{"type": "number"},
			}}, "200", schemaRef("HitResult"), "400", "404"),
		},
		"/api/projects/{id}/gestures": object{
			"post": operation("Replay a touch trace through the pinch/pan controller", "coverage", id, object{"type": "object", "properties": object{
				"container": schemaRef("Size"), "viewport": schemaRef("Viewport"), "events": object{"type": "array", "items": object{"type": "object"}},
			}}, "200", object{"type": "object", "properties": object{
				"viewport": schemaRef("Viewport"), "taps": object{"type": "array", "items": schemaRef("HitResult")},
			}}, "400", "404"),
		},
		"/api/projects/{id}/heatmap": object{
			"get": object{
				"summary": "Interpolated coverage heatmap", "tags": []string{"coverage"},
				"parameters": []object{idParam,
					{"name": "channel", "in": "query", "schema": object{"type": "string", "enum": []string{"download", "upload", "confidence"}, "default": "download"}},
					{"name": "format", "in": "query", "schema": object{"type": "string", "enum": []string{"json", "png", "html"}, "default": "json"}},
				},
				"responses": object{
					"200": object{"description": "Heatmap as JSON, PNG image or HTML page"},
					"404": object{"description": "Not Found", "content": jsonContent(schemaRef("Error"))},
					"409": object{"description": "Fewer than two measurements inside the grid", "content": jsonContent(schemaRef("Error"))},
				},
			},
		},
		"/api/projects/{id}/stats": object{
			"get": operation("Coverage statistics for a project", "coverage", id, nil, "200", object{"type": "object"}, "404"),
		},
		"/api/stats": object{
			"get": operation("Coverage statistics for every project", "coverage", nil, nil, "200", object{"type": "array", "items": object{"type": "object"}}),
		},
		"/api/settings": object{
			"get": operation("Read settings", "settings", nil, nil, "200", schemaRef("Settings")),
			"put": operation("Update settings", "settings", nil, schemaRef("Settings"), "200", schemaRef("Settings"), "400"),
		},
		"/health": object{
			"get": operation("Health check", "system", nil, nil, "200", object{"type": "object", "properties": object{
				"status": object{"type": "string"}, "timestamp": object{"type": "string", "format": "date-time"},
			}}, "503"),
		},
	}
}

func openAPISchemas() object {
	number := object{"type": "number"}
	integer := object{"type": "integer"}
	str := object{"type": "string"}
	return object{
		"Point": object{"type": "object", "properties": object{"X": number, "Y": number}},
		"Size":  object{"type": "object", "properties": object{"width": number, "height": number}},
		"Cell":  object{"type": "object", "properties": object{"col": integer, "row": integer}},
		"Viewport": object{"type": "object", "properties": object{
			"zoom": number, "pan": schemaRef("Point"),
		}},
		"Measurement": object{"type": "object", "properties": object{
			"id":            str,
			"project_id":    str,
			"grid_x":        integer,
			"grid_y":        integer,
			"download_mbps": number,
			"upload_mbps":   number,
			"source":        object{"type": "string", "enum": []string{"scan", "manual", "import"}},
			"measured_at":   object{"type": "string", "format": "date-time"},
		}},
		"Project": object{"type": "object", "properties": object{
			"id":                str,
			"name":              str,
			"created_at":        object{"type": "string", "format": "date-time"},
			"updated_at":        object{"type": "string", "format": "date-time"},
			"image_width":       number,
			"image_height":      number,
			"sizing":            object{"type": "string", "enum": []string{"density", "physical"}},
			"density":           object{"type": "string", "enum": []string{"coarse", "medium", "fine"}},
			"scale_set":         object{"type": "boolean"},
			"meters_per_pixel":  number,
			"cell_size_meters":  number,
			"grid_offset_x":     number,
			"grid_offset_y":     number,
			"grid_cell_size":    number,
			"grid_cols":         integer,
			"grid_rows":         integer,
			"measurement_count": integer,
			"measurements":      object{"type": "array", "items": schemaRef("Measurement")},
		}},
		"HitResult": object{"type": "object", "properties": object{
			"cell": schemaRef("Cell"), "hit": object{"type": "boolean"}, "measurement": schemaRef("Measurement"),
		}},
		"Settings": object{"type": "object", "properties": object{
			"speedtest_runs": object{"type": "integer", "minimum": 1, "maximum": 5},
		}},
		"Error": object{"type": "object", "properties": object{
			"error":      str,
			"message":    str,
			"code":       integer,
			"field":      str,
			"transient":  object{"type": "boolean"},
			"request_id": str,
		}},
	}
}

// OpenAPISpec returns the OpenAPI 3.0 specification for the speed map API
func OpenAPISpec(w http.ResponseWriter, r *http.Request) {
	spec := object{
		"openapi": "3.0.0",
		"info": object{
			"title":       apiTitle,
			"description": "Wi-Fi coverage surveys: floor plans, measurement grids, speed tests and interpolated heatmaps",
			"version":     apiVersion,
		},
		"servers": []map[string]string{
			{"url": "http://localhost:8080", "description": "Local development server"},
		},
		"paths":      openAPIPaths(),
		"components": object{"schemas": openAPISchemas()},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(spec)
}
