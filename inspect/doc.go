package inspect

// inspect handles looking inside captured HTML email bodies: flattening
// them to text, pulling out link targets, and running CSS-selector queries
// so tests can make assertions about markup without parsing it themselves.
