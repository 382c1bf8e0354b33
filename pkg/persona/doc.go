// Package persona predicts a 16-way personality type for short texts.
//
// Quick start:
//
//	c, err := persona.New(persona.WithModelDir("models/"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer c.Close()
//
//	label, _ := c.Predict("I spent the whole weekend reading alone")
//	fmt.Println(label) // e.g. INTP
//
// The Classifier is safe for concurrent use. Create once, reuse across
// requests.
package persona
